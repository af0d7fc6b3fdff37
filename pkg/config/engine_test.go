package config

import (
	"context"
	"net"
	"testing"

	"github.com/marmos91/dittosmb/internal/smbtest"
	"github.com/marmos91/dittosmb/pkg/smb/client"
	"github.com/marmos91/dittosmb/pkg/smb/transport"
)

func TestDefaultConfigDialsAndRunsCompounds(t *testing.T) {
	srv := smbtest.NewServer(smbtest.DefaultOptions())
	if err := srv.AddFile("a.txt", []byte("hello")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	cfg := GetDefaultConfig()
	cfg.Transport.Address = ln.Addr().String()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Expected default config to validate, got: %v", err)
	}

	conn, err := transport.Dial(context.Background(), cfg.DialConfig())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	s := client.NewSession(conn, cfg.ClientConfig())
	defer s.Close()

	st, err := s.Stat(context.Background(), "a.txt")
	if err != nil {
		t.Fatalf("Stat with default config: %v", err)
	}
	if st.Standard.EndOfFile != 5 {
		t.Errorf("Expected size 5, got %d", st.Standard.EndOfFile)
	}

	// The largest compound: CREATE, four full-size READs and CLOSE.
	data, err := s.ReadStream(context.Background(), "a.txt", "", 0, 4*client.DefaultMaxIOSize)
	if err != nil {
		t.Fatalf("ReadStream with default config: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Expected %q, got %q", "hello", data)
	}
	if got := conn.AvailableCredits(); got < cfg.ClientConfig().RequiredCredits() {
		t.Errorf("Expected the window to recover to at least %d credits, got %d", cfg.ClientConfig().RequiredCredits(), got)
	}
}
