package deploy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strings"

	"github.com/hendriksen-mark/server-installer/internal/domain/install"
	"github.com/hendriksen-mark/server-installer/internal/logger"
)

const (
	// ciTag marks images built for continuous reuse of cached layers.
	ciTag = "ci"

	// configMountPoint is where the container expects its configuration.
	configMountPoint = "/opt/extension-server/config"

	// probeAddress is dialed (UDP, no traffic sent) to discover the
	// host's outbound IP address.
	probeAddress = "8.8.8.8:80"
)

// errNoHostAddress is returned when the host IP cannot be determined.
var errNoHostAddress = errors.New("unable to determine host IP address")

// Container deploys the server as a container bound to the host network.
// Configuration is bind-mounted read-write from its original host path, so
// no backup/restore cycle is needed in this mode.
type Container struct {
	// runner executes container runtime commands.
	runner Runner
	// plan holds the staged build context and target paths.
	plan Plan
	// image is the namespace/service image name.
	image string
	// name is the container instance name.
	name string
	// resolveHostIP discovers the host address passed to the container.
	// Swappable in tests.
	resolveHostIP func() (string, error)
}

// NewContainer creates the container strategy.
func NewContainer(runner Runner, plan Plan, image, name string) *Container {
	return &Container{
		runner:        runner,
		plan:          plan,
		image:         image,
		name:          name,
		resolveHostIP: hostIPAddress,
	}
}

// Name implements Strategy.
func (s *Container) Name() string {
	return "container"
}

// PreservesConfigInPlace implements Strategy. The configuration directory is
// bind-mounted from the host, never copied.
func (s *Container) PreservesConfigInPlace() bool {
	return true
}

// StopPrevious implements Strategy by force-removing any prior container
// instance. Absence of a prior container is not an error.
func (s *Container) StopPrevious(ctx context.Context) error {
	logger.InfoKV(ctx, "Removing previous container", "name", s.name)

	output, err := s.runner.Output(ctx, "docker", "rm", "--force", s.name)
	if err != nil {
		if strings.Contains(output, "No such container") {
			logger.Info(ctx, "No previous container found, continuing")
			return nil
		}

		return &install.ServiceControlError{Op: "remove container", Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(output))}
	}

	return nil
}

// Install implements Strategy by building the replacement image from the
// staged server tree. The previous container keeps its image until the new
// build succeeds.
func (s *Container) Install(ctx context.Context) error {
	platform := BuildPlatform(runtime.GOARCH)

	logger.InfoKV(ctx, "Building container image",
		"image", s.ImageTag(), "platform", platform, "context", s.plan.ServerTree)

	err := s.runner.Run(ctx, "docker", "build",
		"--platform", platform,
		"--tag", s.ImageTag(),
		s.plan.ServerTree)
	if err != nil {
		return &install.ServiceControlError{Op: "build image", Err: err}
	}

	return nil
}

// Start implements Strategy by running the replacement container bound to
// the host network with the original config path mounted read-write.
func (s *Container) Start(ctx context.Context) error {
	hostIP, err := s.resolveHostIP()
	if err != nil {
		return &install.ServiceControlError{Op: "detect host address", Err: err}
	}

	logger.InfoKV(ctx, "Starting container", "name", s.name, "host_ip", hostIP)

	err = s.runner.Run(ctx, "docker", "run",
		"--detach",
		"--name", s.name,
		"--network", "host",
		"--restart", "unless-stopped",
		"--volume", s.plan.ConfigPath+":"+configMountPoint+":rw",
		"--env", "IP="+hostIP,
		"--env", "DEBUG=true",
		s.ImageTag())
	if err != nil {
		return &install.ServiceControlError{Op: "run container", Err: err}
	}

	return nil
}

// ImageTag returns the image reference including the CI tag.
func (s *Container) ImageTag() string {
	return s.image + ":" + ciTag
}

// BuildPlatform maps a Go architecture to the container build platform identifier.
func BuildPlatform(goarch string) string {
	switch goarch {
	case "amd64":
		return "linux/amd64"
	case "arm64":
		return "linux/arm64"
	case "arm":
		return "linux/arm/v7"
	case "386":
		return "linux/386"
	default:
		return "linux/" + goarch
	}
}

// hostIPAddress discovers the host's outbound IP by dialing a UDP socket.
// No packets are sent; the kernel just picks the route's local address.
func hostIPAddress() (string, error) {
	connection, err := net.Dial("udp", probeAddress)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errNoHostAddress, err)
	}

	defer func() {
		_ = connection.Close()
	}()

	localAddr, ok := connection.LocalAddr().(*net.UDPAddr)
	if !ok || localAddr.IP == nil {
		return "", errNoHostAddress
	}

	return localAddr.IP.String(), nil
}
