/*
Package clients provides a Go client for the obscura node HTTP API.

ObscuraClient implements interfaces.ObscuraMint, so code written against the
in-process ledger session works unchanged against a remote node. Every
mutating call is signed with the client's secp256k1 key and the node
attributes it to that key's address.

The client also wraps the coprocessor endpoints:

  - Encrypt produces an encrypted input bound to the caller and contract
  - UserDecrypt forwards a signed EIP-712 decryption authorization
  - DecryptObscuraOwner runs the whole keypair, sign, decrypt round trip

# Example Usage

	key, _ := crypto.HexToECDSA("...")
	client, err := clients.NewObscuraClient(ctx, "http://127.0.0.1:8080", key, 10*time.Second)
	if err != nil {
		return err
	}

	receipt, err := client.CreateSeries(ctx, "Genesis", 3)
	...
	_, err = client.EncryptAndSetObscuraOwner(ctx, 0, secretOwner)
	...
	owner, err := client.DecryptObscuraOwner(ctx, 0, 1)
*/
package clients
