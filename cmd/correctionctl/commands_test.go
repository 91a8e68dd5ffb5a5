package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-correction-api/internal/dto"
	"github.com/noah-isme/attendance-correction-api/internal/models"
	"github.com/noah-isme/attendance-correction-api/internal/service"
	"github.com/noah-isme/attendance-correction-api/pkg/config"
)

type bulkStub struct {
	approveReq dto.BulkApproveRequest
	rejectReq  dto.BulkRejectRequest
	actor      string
}

func (b *bulkStub) BulkApprove(ctx context.Context, req dto.BulkApproveRequest, approverID string) (*dto.BulkResult, error) {
	b.approveReq, b.actor = req, approverID
	return &dto.BulkResult{SuccessCount: len(req.IDs) - 1, FailureCount: 1, FailedIDs: []string{*req.IDs[len(req.IDs)-1]}}, nil
}

func (b *bulkStub) BulkReject(ctx context.Context, req dto.BulkRejectRequest, rejecterID string) (*dto.BulkResult, error) {
	b.rejectReq, b.actor = req, rejecterID
	return &dto.BulkResult{SuccessCount: len(req.IDs), FailedIDs: []string{}}, nil
}

func newTestRoot(t *testing.T, stub *bulkStub) (*bytes.Buffer, func(args ...string) error) {
	t.Helper()
	out := &bytes.Buffer{}
	rt := &cli{
		cfg:    &config.Config{JWT: config.JWTConfig{Secret: "cli-secret", Issuer: "hr-identity", Expiration: time.Hour}},
		logger: zap.NewNop(),
		out:    out,
		bulk: func(ctx context.Context) (bulkDecider, func(), error) {
			return stub, func() {}, nil
		},
	}
	root := rt.rootCommand()
	return out, func(args ...string) error {
		root.SetArgs(args)
		return root.Execute()
	}
}

func TestBulkApproveCommandPrintsJSON(t *testing.T) {
	stub := &bulkStub{}
	out, run := newTestRoot(t, stub)

	require.NoError(t, run("bulk", "approve", "--ids", "a,b,c", "--actor", "200", "--note", "payroll close"))
	assert.Equal(t, "200", stub.actor)
	assert.Equal(t, "payroll close", stub.approveReq.Note)
	require.Len(t, stub.approveReq.IDs, 3)
	assert.Equal(t, "b", *stub.approveReq.IDs[1])
	assert.JSONEq(t, `{"successCount":2,"failureCount":1,"failedIds":["c"]}`, out.String())
}

func TestBulkRejectCommandPrintsYAML(t *testing.T) {
	stub := &bulkStub{}
	out, run := newTestRoot(t, stub)

	require.NoError(t, run("bulk", "reject", "--ids", "a", "--actor", "200", "--reason", "no supporting evidence", "-o", "yaml"))
	assert.Equal(t, "no supporting evidence", stub.rejectReq.Reason)
	assert.Equal(t, "successCount: 1\nfailureCount: 0\nfailedIds: []\n", out.String())
}

func TestBulkCommandRejectsUnknownOutput(t *testing.T) {
	_, run := newTestRoot(t, &bulkStub{})
	err := run("bulk", "approve", "--ids", "a", "--actor", "200", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output")
}

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	out, run := newTestRoot(t, &bulkStub{})

	require.NoError(t, run("token", "--user", "200", "--role", "admin", "--name", "Admin Satu"))
	token := strings.TrimSpace(out.String())

	claims, err := service.NewTokenService(service.TokenConfig{Secret: "cli-secret", Issuer: "hr-identity"}).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "Admin Satu", claims.FullName)
}
