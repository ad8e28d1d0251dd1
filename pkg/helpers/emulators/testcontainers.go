package emulators

// ImageContainer describes the docker image backing an emulator.
type ImageContainer struct {
	EmulatorImage    string
	EmulatorHTTPPort string
	EmulatorGRPCPort string
}

// GCImageContainer is an ImageContainer for a Google Cloud service emulator.
type GCImageContainer struct {
	ImageContainer
	ProjectID       string
	SetEnvVariables bool
}
