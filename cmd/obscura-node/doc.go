/*
obscura-node serves the ObscuraMint ledger, its confidential coprocessor and
the HTTP API in front of both.

Configuration comes from flags, OBSCURA_* environment variables, or a TOML file
passed with --config:

	listen-addr = "0.0.0.0:8080"
	contract-address = "0x6693eCD7432a8f82Ed34e253996d4fa359AcA415"
	deployer = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	data-dir = "/var/lib/obscura"
	storage = ["file:///var/lib/obscura/ciphertexts", "s3://bucket/prefix?region=us-east-1"]

The master seed is given either directly (--seed) or as Shamir shares
(--share-file, repeated). Shares produced by "obscura-node keygen --seal-to"
are sealed to an operator key and need --share-key to open.

Subcommands:

	keygen   generate a seed, optionally split into (sealed) shares
	export   write a ledger snapshot to ciphertext storage
	import   restore a snapshot into an empty data directory
*/
package main
