package bitcoin

// GenesisBuilder is what the mining driver needs to (re)build a candidate
// after every time bump. It lets tests count rebuilds or inject failures.
type GenesisBuilder interface {
	// Build assembles a genesis candidate from p.
	Build(p Params) (*Genesis, error)

	// PubKeyAddress returns a display address for the output key, or "".
	PubKeyAddress(pubkeyHex string) string
}
