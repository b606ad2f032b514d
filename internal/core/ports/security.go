package ports

// SecurityPort encrypts message bodies that are kept at rest.
// associatedData is authenticated but not encrypted; the same value must be
// supplied to Decrypt, which binds a ciphertext to the record it belongs to.
type SecurityPort interface {
	Encrypt(plaintext, associatedData []byte) (ciphertext []byte, err error)
	Decrypt(ciphertext, associatedData []byte) (plaintext []byte, err error)
}
