package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServerServesMetrics(t *testing.T) {
	RecordFetch("www.lacentrale.fr", "raw", 200, false, 120*time.Millisecond)
	Blocks.WithLabelValues("www.leboncoin.fr", "DataDome").Inc()

	port := freePort(t)
	s := Start(port)
	defer func() { _ = s.Stop(context.Background()) }()

	var body string
	for i := 0; i < 20; i++ {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", port))
		if err != nil {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		body = string(b)
		break
	}
	if body == "" {
		t.Fatal("metrics endpoint never came up")
	}
	if !strings.Contains(body, "vigiauto_fetch_status_total") {
		t.Errorf("expected fetch status metric in output")
	}
	if !strings.Contains(body, "vigiauto_blocks_total") {
		t.Errorf("expected blocks metric in output")
	}
}

func TestStopIdempotent(t *testing.T) {
	s := &Server{}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("stopping an empty server must not error: %v", err)
	}
}
