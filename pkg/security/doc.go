/*
Package security encrypts the data Heartbeat keeps on disk and sends over
the network.

An Encryptor derives a fresh AES-256 key for every message from a shared
password and a random salt, then seals the message with AES-GCM:

	┌──────────── envelope (base64) ────────────┐
	│ salt (16) │ nonce (12) │ ciphertext + tag │
	└───────────────────────────────────────────┘

	key = SHA-256 applied KeyIterations times over password || salt

Nodes that share the password can read each other's events; anything else
fails to decrypt with ErrDecrypt. Plaintext satisfies the same Cipher
interface for deployments that run without encryption.
*/
package security
