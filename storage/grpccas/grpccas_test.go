package grpccas

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/canonproof/cidutil"
	"xdao.co/canonproof/storage"
	"xdao.co/canonproof/storage/localfs"
	"xdao.co/canonproof/storage/testkit"
)

func startServer(t *testing.T, backing storage.CAS) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterCASServer(srv, &Server{CAS: backing})
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.DialContext(ctx) }
	client, err := Dial("passthrough:///bufnet", DialOptions{Extra: []grpc.DialOption{grpc.WithContextDialer(dialer)}})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	client.Timeout = 2 * time.Second
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGRPCCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return startServer(t, storage.NewMemoryCAS())
	})
}

func TestGRPCCAS_LocalFS_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	client := startServer(t, cas)

	payload := []byte("hello grpccas")
	id, err := client.Put(ctx, payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := cas.Has(ctx, id); err != nil || !ok {
		t.Fatalf("object not persisted in backing store: (%v, %v)", ok, err)
	}
	got, err := client.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestGRPCCAS_NotFoundMapsToSentinel(t *testing.T) {
	client := startServer(t, storage.NewMemoryCAS())
	id, err := cidutil.CIDv1RawSHA256CID([]byte("absent"))
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID: %v", err)
	}
	if _, err := client.Get(context.Background(), id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get absent: got %v want ErrNotFound", err)
	}
}

func TestGRPCCAS_MissingBackingCAS(t *testing.T) {
	client := startServer(t, nil)
	if _, err := client.Put(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected FailedPrecondition error")
	}
}
