// Package handshake implements the ephemeral finite-field Diffie-Hellman
// exchange that opens every upload connection.
//
// # Overview
//
// On connect the server generates fresh domain parameters (a safe prime
// modulus and a generator), announces them, then generates its key pair and
// sends its public value. The client answers with its own public value,
// computed over the same parameters. Each side combines the peer's public
// value with its private exponent and passes the result through HKDF-SHA256
// to obtain 32 bytes of key material.
//
// # Encoding
//
// Public values travel as PEM "PUBLIC KEY" blocks holding a
// SubjectPublicKeyInfo with the PKCS #3 dhKeyAgreement algorithm
// (1.2.840.113549.1.3.1). The encoding matches what OpenSSL-based peers emit
// for DH keys, so clients built on common crypto libraries interoperate.
//
// # Failure Model
//
// Every malformed input (bad PEM, bad DER, mismatched parameters, public
// values outside (1, p-1)) is returned as an error; nothing in this package
// panics on peer-controlled data.
package handshake
