package orchestrate_test

import (
	"context"
	"crypto"
	"fmt"
	"testing"
	"time"

	"github.com/vaultstamp/tspdf/internal/testpki"
	"github.com/vaultstamp/tspdf/tsaclient"
)

func TestDebugImprint(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	defer pki.Close()
	key, cert := pki.IssueTSASigner("Test TSA")
	server := pki.StartFakeTSA(key, cert)
	defer server.Close()

	imprint := make([]byte, 32)
	for i := range imprint {
		imprint[i] = byte(i)
	}
	res, err := tsaclient.New().Request(context.Background(), imprint, tsaclient.Opts{
		URL: server.URL, Hash: crypto.SHA256, Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	fmt.Printf("granted=%v info=%+v\n", res.Granted, res.Info)
	fmt.Printf("expect digest=%x\n", imprint)
}
