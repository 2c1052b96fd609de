package certstore

// Ref identifies the certificate to sign with. It is either a FileRef or a
// ThumbprintRef.
type Ref interface {
	isRef()
}

// FileRef names a PKCS#12 credential file and its passphrase.
type FileRef struct {
	Path       string
	Passphrase Secret
}

// ThumbprintRef names a certificate by SHA-1 thumbprint.
type ThumbprintRef struct {
	Thumbprint string
}

func (FileRef) isRef()       {}
func (ThumbprintRef) isRef() {}
