package common

// Version is overridden at build time with -ldflags "-X github.com/ruteri/obscura-mint/common.Version=..."
var Version = "dev"

const PackageName = "obscura-mint"
