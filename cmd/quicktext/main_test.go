package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"quicktext/internal/server/api"
	"quicktext/internal/server/config"
	"quicktext/internal/server/service"
	"quicktext/internal/server/storage"
)

func runCLI(t *testing.T, server, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", server}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI(t *testing.T) {
	svc := service.NewShareService(storage.NewMemoryStore(), nil,
		service.Config{BcryptCost: bcrypt.MinCost}, zap.NewNop())
	srv := httptest.NewServer(api.SetupRouter(
		api.NewHandler(svc, nil, "http://qt.test", zap.NewNop()), &config.Config{}, zap.NewNop()))
	t.Cleanup(srv.Close)

	file := filepath.Join(t.TempDir(), "hello.py")
	require.NoError(t, os.WriteFile(file, []byte("print('hi')"), 0644))

	out, err := runCLI(t, srv.URL, "", "share", file, "--password", "pw")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "✓ Shared as "), out)
	code := strings.Fields(out)[3]
	assert.Contains(t, out, "password protected")

	_, err = runCLI(t, srv.URL, "", "get", code)
	assert.ErrorContains(t, err, "password protected")

	_, err = runCLI(t, srv.URL, "print('bye')", "update", code, "-")
	require.NoError(t, err)

	out, err = runCLI(t, srv.URL, "", "get", code, "-p", "pw")
	require.NoError(t, err)
	assert.Equal(t, "print('bye')", out)

	_, err = runCLI(t, srv.URL, "", "share", t.TempDir())
	assert.ErrorContains(t, err, "is a directory")
}
