package descriptors

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func selfSignedCertificate(t *testing.T) Certificate {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, priv.Public(), priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return Certificate{PrivateKey: priv, Chain: []*x509.Certificate{cert}}
}

func TestListenerAcceptEchoRoundTrip(t *testing.T) {
	material := selfSignedCertificate(t)

	ln, err := Listen("127.0.0.1:0", material)
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.ln.Addr().String()

	acceptErr := make(chan error, 1)
	var server File
	go func() {
		f, err := ln.Accept()
		server = f
		acceptErr <- err
	}()

	client, err := Connect(addr, material)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, <-acceptErr)
	defer server.Close()

	payload := []byte("hello from the guest")
	n, err := server.WriteVectored([][]byte{payload})
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	got := 0
	for got < len(payload) {
		n, err := client.ReadVectored([][]byte{buf[got:]})
		require.NoError(t, err)
		got += n
	}
	require.Equal(t, payload, buf)
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	material := selfSignedCertificate(t)
	ln, err := Listen("127.0.0.1:0", material)
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.ln.Addr().String()
	acceptErr := make(chan error, 1)
	go func() {
		_, err := ln.Accept()
		acceptErr <- err
	}()

	client, err := Connect(addr, material)
	require.NoError(t, err)
	require.NoError(t, <-acceptErr)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close(), "closing twice must not error or panic")
}

func TestPlainListenerAcceptEchoRoundTrip(t *testing.T) {
	ln, err := ListenPlain("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.ln.Addr().String()

	acceptErr := make(chan error, 1)
	var server File
	go func() {
		f, err := ln.Accept()
		server = f
		acceptErr <- err
	}()

	client, err := ConnectPlain(addr)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, <-acceptErr)
	defer server.Close()

	payload := []byte("hello over plain tcp")
	n, err := server.WriteVectored([][]byte{payload})
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	got := 0
	for got < len(payload) {
		n, err := client.ReadVectored([][]byte{buf[got:]})
		require.NoError(t, err)
		got += n
	}
	require.Equal(t, payload, buf)
}

func TestStreamCleanCloseReadsAsZero(t *testing.T) {
	material := selfSignedCertificate(t)
	ln, err := Listen("127.0.0.1:0", material)
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.ln.Addr().String()
	serverCh := make(chan File, 1)
	go func() {
		f, _ := ln.Accept()
		serverCh <- f
	}()

	client, err := Connect(addr, material)
	require.NoError(t, err)
	server := <-serverCh
	require.NoError(t, server.Close())

	buf := make([]byte, 16)
	n, err := client.ReadVectored([][]byte{buf})
	require.NoError(t, err)
	require.Equal(t, 0, n, "a cleanly closed peer must surface as a zero-length read, not an error")
}
