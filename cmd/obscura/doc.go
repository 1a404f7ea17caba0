/*
obscura is the command-line client for ObscuraMint.

By default it talks to a node (--server). With --rpc-addr and --contract it
talks to a deployed contract instead, and --coprocessor names the node used to
encrypt and decrypt confidential owners.

	obscura --key $KEY create-series --name Genesis --max 3
	obscura --key $KEY mint --id 0 --amount 2
	obscura --key $KEY set-owner --id 0 --owner 0x7099...79C8
	obscura --key $KEY decrypt-owner --id 0
	obscura series
	obscura events --follow
*/
package main
