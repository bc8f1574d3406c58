package attest

import (
	"log"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
)

// akHandle is the well-known persistent handle this deployment provisions
// an attestation key under. Provisioning that key is out of scope here;
// wasmkeep expects the host operator to have loaded it ahead of time.
const akHandle = tpm2.TPMHandle(0x8101_0001)

var quotePCRs = []uint{0, 1, 2, 3, 4, 5, 6, 7}

// tpmAttestor quotes PCRs 0-7 over the caller's nonce using the
// platform's resident attestation key.
type tpmAttestor struct {
	device string
}

func (a *tpmAttestor) Attest(nonce []byte) (Report, error) {
	tpm, err := transport.OpenTPM(a.device)
	if err != nil {
		return nil, platformErrorf("open %s: %v", a.device, err)
	}
	defer tpm.Close()

	sel := tpm2.TPMLPCRSelection{
		PCRSelections: []tpm2.TPMSPCRSelection{
			{
				Hash:      tpm2.TPMAlgSHA256,
				PCRSelect: tpm2.PCClientCompatible.PCRs(quotePCRs...),
			},
		},
	}

	quote := tpm2.Quote{
		SignHandle: tpm2.AuthHandle{
			Handle: akHandle,
			Auth:   tpm2.PasswordAuth(nil),
		},
		QualifyingData: tpm2.TPM2BData{Buffer: nonce},
		InScheme: tpm2.TPMTSigScheme{
			Scheme: tpm2.TPMAlgRSASSA,
			Details: tpm2.NewTPMUSigScheme(tpm2.TPMAlgRSASSA,
				&tpm2.TPMSSchemeHash{HashAlg: tpm2.TPMAlgSHA256}),
		},
		PCRSelect: sel,
	}

	resp, err := quote.Execute(tpm)
	if err != nil {
		return nil, platformErrorf("quote: %v", err)
	}

	report, err := marshalQuote(resp)
	if err != nil {
		return nil, platformErrorf("marshal quote: %v", err)
	}

	log.Printf("[DEBUG] attest: produced %d-byte report over %d-byte nonce", len(report), len(nonce))
	return report, nil
}

// marshalQuote flattens the attested quote and its signature into a
// single opaque report: the guest only ever treats this as bytes.
func marshalQuote(resp *tpm2.QuoteResponse) (Report, error) {
	attested := resp.Quoted.Bytes()
	sig, err := resp.Signature.Signature.RSASSA()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(attested)+len(sig.Sig.Buffer))
	out = append(out, attested...)
	out = append(out, sig.Sig.Buffer...)
	return out, nil
}
