package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

func newStore(t *testing.T, max int64) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), max)
	require.NoError(t, err)
	l.now = func() time.Time { return time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC) }
	return l
}

func TestSaveOpenDelete(t *testing.T) {
	l := newStore(t, 0)
	ctx := context.Background()

	obj, err := l.Save(ctx, "Minutes.TXT", strings.NewReader("club assembly minutes\n"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(obj.Path, "2026/03/"))
	require.True(t, strings.HasSuffix(obj.Path, ".txt"))
	require.Equal(t, "text/plain", obj.MimeType)
	require.Equal(t, int64(22), obj.Size)

	rc, err := l.Open(ctx, obj.Path)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "club assembly minutes\n", string(body))

	require.NoError(t, l.Delete(ctx, obj.Path))
	require.NoError(t, l.Delete(ctx, obj.Path))
	_, err = l.Open(ctx, obj.Path)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSaveDetectsContent(t *testing.T) {
	l := newStore(t, 0)
	pdf := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("x"), 64)...)

	obj, err := l.Save(context.Background(), "report", bytes.NewReader(pdf))
	require.NoError(t, err)
	require.Equal(t, "application/pdf", obj.MimeType)
	require.True(t, strings.HasSuffix(obj.Path, ".pdf"))

	elf := append([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1}, bytes.Repeat([]byte{0}, 64)...)
	_, err = l.Save(context.Background(), "innocent.pdf", bytes.NewReader(elf))
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestSaveEnforcesLimit(t *testing.T) {
	l := newStore(t, 10)
	_, err := l.Save(context.Background(), "big.txt", strings.NewReader(strings.Repeat("a", 11)))
	require.ErrorIs(t, err, ErrTooLarge)

	obj, err := l.Save(context.Background(), "ok.txt", strings.NewReader(strings.Repeat("a", 10)))
	require.NoError(t, err)
	require.Equal(t, int64(10), obj.Size)
}

func TestResolveRejectsTraversal(t *testing.T) {
	l := newStore(t, 0)
	_, err := l.Open(context.Background(), "../../etc/passwd")
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrNotFound)
	require.Error(t, l.Delete(context.Background(), "/etc/passwd"))
}

func TestAllowed(t *testing.T) {
	require.True(t, Allowed("text/plain; charset=utf-8"))
	require.True(t, Allowed("APPLICATION/PDF"))
	require.False(t, Allowed("application/x-elf"))
}
