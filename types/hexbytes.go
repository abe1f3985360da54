package types

import dvotetypes "go.vocdoni.io/dvote/types"

// HexBytes is a []byte which encodes as hexadecimal in json. The 0x prefix is
// accepted but not required when decoding.
type HexBytes = dvotetypes.HexBytes
