package version

// Version is set at build time with -ldflags "-X t0/internal/version.Version=...".
var Version = "dev"
