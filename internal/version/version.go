package version

// Version is the current version of streamRTC.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/Revaiowo/streamRTC/internal/version.Version=v1.0.0'"
var Version = "dev"
