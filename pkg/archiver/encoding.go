package archiver

import "github.com/mr-tron/base58"

// encodeBlockhash renders a blockhash the same way rpcclient.Client
// receives it from the cluster, so turnpoller's "previous_blockhash"
// string comparison (spec §4.E step 3) works uniformly end to end.
func encodeBlockhash(hash [32]byte) string {
	return base58.Encode(hash[:])
}
