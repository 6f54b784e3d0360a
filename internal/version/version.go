package version

// Version is overridden at build time with -ldflags "-X vslice/internal/version.Version=..."
var Version = "0.3.1"
