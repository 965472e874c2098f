package browser

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

const (
	// BackendDocker is the name of the containerized Chromium backend
	BackendDocker = "docker"

	// DefaultDockerImage serves CDP on port 3000 and accepts launch flags as query parameters
	DefaultDockerImage = "browserless/chrome:latest"

	containerDataDir = "/data"
	containerCDPPort = "3000/tcp"
	stopTimeout      = 10
)

// DockerDriver runs each browser in its own container and attaches over CDP.
// Persistent profiles are bind-mounted into the container.
type DockerDriver struct {
	client  *client.Client
	runtime *Runtime
	image   string
	logger  *zap.Logger
}

// NewDockerDriver connects to the Docker daemon described by the environment
func NewDockerDriver(runtime *Runtime, imageName string, logger *zap.Logger) (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if imageName == "" {
		imageName = DefaultDockerImage
	}

	return &DockerDriver{
		client:  cli,
		runtime: runtime,
		image:   imageName,
		logger:  logger,
	}, nil
}

func (d *DockerDriver) Name() string {
	return BackendDocker
}

// EnsureImage pulls the browser image when it is not present locally
func (d *DockerDriver) EnsureImage(ctx context.Context) error {
	images, err := d.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == d.image {
				return nil
			}
		}
	}

	d.logger.Info("Pulling browser image", zap.String("image", d.image))
	reader, err := d.client.ImagePull(ctx, d.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (d *DockerDriver) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	containerID, port, err := d.startContainer(ctx, opts, "")
	if err != nil {
		return nil, err
	}

	browser, err := d.connect(fmt.Sprintf("ws://localhost:%s", port), opts)
	if err != nil {
		d.stopContainer(containerID)
		return nil, err
	}

	return &dockerBrowser{
		pwBrowser: pwBrowser{browser: browser, viewport: opts.Viewport},
		stop:      func() error { return d.stopContainer(containerID) },
	}, nil
}

func (d *DockerDriver) LaunchPersistent(ctx context.Context, userDataDir string, opts LaunchOptions) (Context, error) {
	hostDir, err := filepath.Abs(userDataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile directory: %w", err)
	}

	containerID, port, err := d.startContainer(ctx, opts, hostDir)
	if err != nil {
		return nil, err
	}

	connectURL := fmt.Sprintf("ws://localhost:%s", port)
	browser, err := d.connect(fmt.Sprintf("%s?--user-data-dir=%s", connectURL, containerDataDir), opts)
	if err != nil {
		d.stopContainer(containerID)
		return nil, err
	}

	var bc playwright.BrowserContext
	if contexts := browser.Contexts(); len(contexts) > 0 {
		bc = contexts[0]
	} else {
		bc, err = browser.NewContext(playwright.BrowserNewContextOptions{Viewport: toSize(opts.Viewport)})
		if err != nil {
			browser.Close()
			d.stopContainer(containerID)
			return nil, fmt.Errorf("failed to create context: %w", err)
		}
	}

	debugURL, err := browserTargetURL(browser, connectURL)
	if err != nil {
		d.logger.Warn("Could not resolve the session's browser target; debug proxy disabled",
			zap.String("session", opts.SessionID),
			zap.Error(err))
	}

	return &pwContext{
		context:    bc,
		connectURL: debugURL,
		onClose: func() error {
			_ = browser.Close() // Ignore errors, the container is going away
			return d.stopContainer(containerID)
		},
	}, nil
}

// browserTargetURL returns the endpoint that reattaches to this running
// browser. The launch URL would make browserless start a fresh browser
// without the session's profile.
func browserTargetURL(browser playwright.Browser, base string) (string, error) {
	session, err := browser.NewBrowserCDPSession()
	if err != nil {
		return "", fmt.Errorf("failed to open CDP session: %w", err)
	}
	defer session.Detach()

	result, err := session.Send("Target.getTargetInfo", nil)
	if err != nil {
		return "", fmt.Errorf("Target.getTargetInfo: %w", err)
	}
	id, err := parseTargetID(result)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/devtools/browser/%s", base, id), nil
}

func parseTargetID(result interface{}) (string, error) {
	fields, ok := result.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected Target.getTargetInfo result %T", result)
	}
	info, ok := fields["targetInfo"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("Target.getTargetInfo result has no targetInfo")
	}
	id, _ := info["targetId"].(string)
	if id == "" {
		return "", fmt.Errorf("Target.getTargetInfo result has no targetId")
	}
	return id, nil
}

func (d *DockerDriver) Close() error {
	return d.client.Close()
}

func (d *DockerDriver) connect(endpoint string, opts LaunchOptions) (playwright.Browser, error) {
	chromium, err := d.runtime.chromium()
	if err != nil {
		return nil, err
	}

	browser, err := chromium.ConnectOverCDP(endpoint, playwright.BrowserTypeConnectOverCDPOptions{
		Timeout: millis(opts.Timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect over CDP: %w", err)
	}
	return browser, nil
}

// startContainer creates and starts a browser container, mounting hostDir
// at /data when given, and returns the container ID and host CDP port
func (d *DockerDriver) startContainer(ctx context.Context, opts LaunchOptions, hostDir string) (string, string, error) {
	containerConfig := &container.Config{
		Image: d.image,
		Labels: map[string]string{
			"session-id": opts.SessionID,
			"managed-by": "warmcontext",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",        // Disable connection timeout
			"MAX_CONCURRENT_SESSIONS=1",    // Only allow 1 session per container
			"KEEP_ALIVE=true",              // Keep connections alive
			"EXIT_ON_HEALTH_FAILURE=false", // Don't exit on health check failures
		},
		ExposedPorts: nat.PortSet{
			containerCDPPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerCDPPort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
		AutoRemove: false,
	}
	if hostDir != "" {
		hostConfig.Mounts = []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: hostDir,
				Target: containerDataDir,
			},
		}
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName(opts.SessionID))
	if err != nil {
		return "", "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		d.removeContainer(resp.ID)
		return "", "", fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := d.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		d.stopContainer(resp.ID)
		return "", "", fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports[containerCDPPort]
	if len(bindings) == 0 {
		d.stopContainer(resp.ID)
		return "", "", fmt.Errorf("container %s exposes no CDP port", resp.ID[:12])
	}
	port := bindings[0].HostPort

	if _, err := waitForDebugger(ctx, "localhost:"+port); err != nil {
		d.stopContainer(resp.ID)
		return "", "", fmt.Errorf("browser failed to become ready: %w", err)
	}

	d.logger.Debug("Browser container ready",
		zap.String("session", opts.SessionID),
		zap.String("container", resp.ID[:12]),
		zap.String("port", port))

	return resp.ID, port, nil
}

func (d *DockerDriver) stopContainer(containerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	timeout := stopTimeout
	if err := d.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return d.removeContainer(containerID)
}

func (d *DockerDriver) removeContainer(containerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

func containerName(sessionID string) string {
	if len(sessionID) < 8 {
		return ""
	}
	return fmt.Sprintf("warmctx-%s", sessionID[:8])
}

// dockerBrowser stops its container once the browser is closed
type dockerBrowser struct {
	pwBrowser
	stop func() error
}

func (b *dockerBrowser) Close() error {
	_ = b.pwBrowser.Close() // Ignore errors, continue cleanup
	return b.stop()
}
