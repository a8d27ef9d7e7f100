package renderer

import (
	"cmp"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"vkframe/gfx"
	"vkframe/queues"
	"vkframe/rollback"
)

const debugReportExtension = "VK_EXT_debug_report"

// Window is the part of the window system the renderer needs. *glfw.Window
// implements it.
type Window interface {
	gfx.SurfaceSource

	// GetFramebufferSize returns the drawable size in pixels.
	GetFramebufferSize() (width, height int)

	// GetRequiredInstanceExtensions lists the instance extensions needed for
	// presenting to this kind of window.
	GetRequiredInstanceExtensions() []string
}

// DeviceContext owns the instance, the surface, the logical device with its
// single queue and the memory allocator. Everything else the renderer creates
// depends on it, so it is destroyed last.
type DeviceContext struct {
	backend gfx.Backend
	cfg     Config
	namer   DebugNamer

	instance  gfx.Instance
	messenger gfx.DebugMessenger
	surface   gfx.Surface

	// physicalDevice is the first device which passed the capability checks.
	physicalDevice gfx.PhysicalDevice
	info           gfx.DeviceInfo

	device      gfx.Device
	queue       gfx.Queue
	queueFamily uint32

	allocator *Allocator

	surfaceFormat gfx.SurfaceFormat
	presentMode   gfx.PresentMode
	depthFormat   gfx.Format
}

// NewDeviceContext brings up everything up to and including the allocator. When
// a step fails, every step before it is undone in reverse order and the returned
// error names the step.
func NewDeviceContext(backend gfx.Backend, window Window, cfg Config) (*DeviceContext, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ctx := &DeviceContext{
		backend: backend,
		cfg:     cfg,
		namer:   namerOrNop(cfg.Namer),
	}

	rb := rollback.New("device context", Logger())
	defer unwind(rb)

	if err := ctx.checkInstanceVersion(); err != nil {
		return nil, err
	}

	extensions, err := ctx.instanceExtensions(window)
	if err != nil {
		return nil, err
	}

	layers, err := ctx.validationLayers()
	if err != nil {
		return nil, err
	}

	instance, err := backend.CreateInstance(gfx.InstanceInfo{
		AppName:    cfg.AppName,
		APIVersion: cfg.MinAPIVersion,
		Extensions: extensions,
		Layers:     layers,
	})
	if err != nil {
		return nil, creationFailed(err, "createInstance")
	}
	ctx.instance = instance
	rb.Push("instance", func() {
		backend.DestroyInstance(instance)
		ctx.instance = gfx.NullInstance
	})

	if cfg.Validation {
		messenger, err := backend.CreateDebugMessenger(instance)
		if err != nil {
			return nil, creationFailed(err, "createDebugMessenger")
		}
		ctx.messenger = messenger
		rb.Push("debug messenger", func() {
			backend.DestroyDebugMessenger(instance, messenger)
			ctx.messenger = gfx.NullDebugMessenger
		})
	}

	surface, err := backend.CreateSurface(instance, window)
	if err != nil {
		return nil, creationFailed(err, "createSurface")
	}
	ctx.surface = surface
	rb.Push("surface", func() {
		backend.DestroySurface(instance, surface)
		ctx.surface = gfx.NullSurface
	})

	if err := ctx.selectPhysicalDevice(); err != nil {
		return nil, err
	}

	required := cfg.requiredFeatures()
	device, err := backend.CreateDevice(ctx.physicalDevice, gfx.DeviceCreateInfo{
		QueueFamily: ctx.queueFamily,
		Extensions:  cfg.DeviceExtensions,
		Layers:      layers,
		Features:    required,
	})
	if err != nil {
		return nil, creationFailed(err, "createDevice")
	}
	ctx.device = device
	rb.Push("device", func() {
		backend.DestroyDevice(device)
		ctx.device = gfx.NullDevice
	})

	ctx.queue = backend.GetQueue(device, ctx.queueFamily)
	ctx.namer.SetObjectName(gfx.ObjectQueue, gfx.Handle(ctx.queue), "graphics queue")

	ctx.allocator = newAllocator(backend, device, ctx.info.MemoryTypes, cfg.BlockSize, ctx.namer)
	rb.Push("allocator", func() {
		ctx.allocator.Destroy()
	})

	Logger().Info("device context: created",
		slog.String("device", ctx.info.Name),
		slog.String("api", ctx.info.APIVersion.String()),
		slog.String("present mode", ctx.presentMode.String()),
		slog.Int("surface format", int(ctx.surfaceFormat.Format)),
		slog.Int("depth format", int(ctx.depthFormat)),
	)

	rb.Defuse()
	return ctx, nil
}

func (ctx *DeviceContext) checkInstanceVersion() error {
	version, err := ctx.backend.InstanceVersion()
	if err != nil {
		return unsupported(err, "checkInstanceVersion")
	}

	if version < ctx.cfg.MinAPIVersion {
		return unsupportedf("checkInstanceVersion: instance version %s is below the required %s",
			version, ctx.cfg.MinAPIVersion)
	}
	return nil
}

// instanceExtensions returns the extensions to enable on the instance after
// making sure all of them are available.
func (ctx *DeviceContext) instanceExtensions(window Window) ([]string, error) {
	required := append([]string(nil), window.GetRequiredInstanceExtensions()...)
	if ctx.cfg.Validation {
		required = append(required, debugReportExtension)
	}

	available, err := ctx.backend.InstanceExtensions()
	if err != nil {
		return nil, unsupported(err, "checkInstanceExtensions")
	}

	if missing := missingNames(required, available); len(missing) > 0 {
		return nil, unsupportedf("checkInstanceExtensions: missing %v", missing)
	}
	return required, nil
}

func (ctx *DeviceContext) validationLayers() ([]string, error) {
	if !ctx.cfg.Validation {
		return nil, nil
	}

	available, err := ctx.backend.InstanceLayers()
	if err != nil {
		return nil, unsupported(err, "checkValidationLayers")
	}

	if missing := missingNames(ctx.cfg.ValidationLayers, available); len(missing) > 0 {
		return nil, unsupportedf("checkValidationLayers: missing %v", missing)
	}
	return ctx.cfg.ValidationLayers, nil
}

func (ctx *DeviceContext) selectPhysicalDevice() error {
	devices, err := ctx.backend.PhysicalDevices(ctx.instance)
	if err != nil {
		return unsupported(err, "selectPhysicalDevice")
	}
	if len(devices) == 0 {
		return unsupportedf("selectPhysicalDevice: no GPUs with Vulkan support")
	}

	for _, pd := range devices {
		info, err := ctx.backend.DescribePhysicalDevice(pd, ctx.surface)
		if err != nil {
			return unsupported(err, "selectPhysicalDevice")
		}

		choice, err := ctx.cfg.checkDevice(info)
		if err != nil {
			Logger().Info("physical device rejected",
				slog.String("device", info.Name),
				slog.String("reason", err.Error()),
			)
			continue
		}

		ctx.physicalDevice = pd
		ctx.info = info
		ctx.queueFamily = choice.queueFamily
		ctx.surfaceFormat = choice.surfaceFormat
		ctx.presentMode = choice.presentMode
		ctx.depthFormat = choice.depthFormat
		return nil
	}

	return unsupportedf("selectPhysicalDevice: none of %d devices is suitable", len(devices))
}

// deviceChoice is what the renderer decided to use on an accepted device.
type deviceChoice struct {
	queueFamily   uint32
	surfaceFormat gfx.SurfaceFormat
	presentMode   gfx.PresentMode
	depthFormat   gfx.Format
}

// checkDevice applies the capability predicate. The returned error says why the
// device is not good enough.
func (c *Config) checkDevice(info gfx.DeviceInfo) (deviceChoice, error) {
	var choice deviceChoice

	if info.APIVersion < c.MinAPIVersion {
		return choice, errors.Newf("api version %s is below %s", info.APIVersion, c.MinAPIVersion)
	}

	if !info.Features.Covers(c.requiredFeatures()) {
		return choice, errors.New("missing required features")
	}

	if missing := missingNames(c.DeviceExtensions, info.Extensions); len(missing) > 0 {
		return choice, errors.Newf("missing extensions %v", missing)
	}

	indices := queues.Find(info.QueueFamilies)
	if !indices.HasShared() {
		return choice, errors.New("no queue family does both graphics and present")
	}
	choice.queueFamily = indices.Shared.Get()

	depth, ok := chooseDepthFormat(c.DepthCandidates, info.DepthFormats)
	if !ok {
		return choice, errors.New("no supported depth format")
	}
	choice.depthFormat = depth

	if len(info.SurfaceFormats) == 0 {
		return choice, errors.New("no surface formats")
	}
	choice.surfaceFormat = chooseSurfaceFormat(info.SurfaceFormats)

	if len(info.PresentModes) == 0 {
		return choice, errors.New("no present modes")
	}
	choice.presentMode = choosePresentMode(info.PresentModes)

	return choice, nil
}

var preferredSurfaceFormat = gfx.SurfaceFormat{
	Format:     gfx.FormatB8G8R8A8Unorm,
	ColorSpace: gfx.ColorSpaceSrgbNonlinear,
}

// chooseSurfaceFormat picks the preferred format when the surface supports it.
// A lone undefined entry means the surface takes any format.
func chooseSurfaceFormat(available []gfx.SurfaceFormat) gfx.SurfaceFormat {
	if len(available) == 1 && available[0].Format == gfx.FormatUndefined {
		return preferredSurfaceFormat
	}

	for _, format := range available {
		if format == preferredSurfaceFormat {
			return format
		}
	}

	return available[0]
}

var presentModePriority = []gfx.PresentMode{
	gfx.PresentModeMailbox,
	gfx.PresentModeImmediate,
	gfx.PresentModeFifo,
}

func choosePresentMode(available []gfx.PresentMode) gfx.PresentMode {
	for _, want := range presentModePriority {
		for _, mode := range available {
			if mode == want {
				return mode
			}
		}
	}

	// FIFO is always supported.
	return gfx.PresentModeFifo
}

func chooseDepthFormat(candidates, supported []gfx.Format) (gfx.Format, bool) {
	for _, candidate := range candidates {
		for _, format := range supported {
			if format == candidate {
				return candidate, true
			}
		}
	}
	return gfx.FormatUndefined, false
}

// missingNames returns the entries of required which are not in available,
// sorted.
func missingNames(required, available []string) []string {
	have := make(map[string]struct{}, len(available))
	for _, name := range available {
		have[name] = struct{}{}
	}

	var missing []string
	for _, name := range required {
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// Destroy releases the allocator, the device, the surface, the debug messenger
// and the instance, in that order. Everything created from the context must be
// gone by then. Calling it twice is harmless.
func (ctx *DeviceContext) Destroy() {
	if ctx.allocator != nil {
		ctx.allocator.Destroy()
		ctx.allocator = nil
	}

	if ctx.device != gfx.NullDevice {
		ctx.backend.DestroyDevice(ctx.device)
		ctx.device = gfx.NullDevice
	}

	if ctx.surface != gfx.NullSurface {
		ctx.backend.DestroySurface(ctx.instance, ctx.surface)
		ctx.surface = gfx.NullSurface
	}

	if ctx.messenger != gfx.NullDebugMessenger {
		ctx.backend.DestroyDebugMessenger(ctx.instance, ctx.messenger)
		ctx.messenger = gfx.NullDebugMessenger
	}

	if ctx.instance != gfx.NullInstance {
		ctx.backend.DestroyInstance(ctx.instance)
		ctx.instance = gfx.NullInstance
	}

	Logger().Debug("device context: destroyed")
}

// WaitIdle blocks until the device has finished all submitted work.
func (ctx *DeviceContext) WaitIdle() error {
	if err := ctx.backend.DeviceWaitIdle(ctx.device); err != nil {
		return deviceLost(err, "deviceWaitIdle")
	}
	return nil
}

// Backend returns the backend the context drives.
func (ctx *DeviceContext) Backend() gfx.Backend { return ctx.backend }

// Device returns the logical device.
func (ctx *DeviceContext) Device() gfx.Device { return ctx.device }

// Queue returns the graphics and present queue.
func (ctx *DeviceContext) Queue() gfx.Queue { return ctx.queue }

// QueueFamily returns the family the queue belongs to.
func (ctx *DeviceContext) QueueFamily() uint32 { return ctx.queueFamily }

// Allocator returns the memory allocator.
func (ctx *DeviceContext) Allocator() *Allocator { return ctx.allocator }

// DeviceInfo describes the selected physical device.
func (ctx *DeviceContext) DeviceInfo() gfx.DeviceInfo { return ctx.info }

// SurfaceFormat returns the format swapchain images are created with.
func (ctx *DeviceContext) SurfaceFormat() gfx.SurfaceFormat { return ctx.surfaceFormat }

// PresentMode returns the present mode swapchains are created with.
func (ctx *DeviceContext) PresentMode() gfx.PresentMode { return ctx.presentMode }

// DepthFormat returns the format of the depth buffer.
func (ctx *DeviceContext) DepthFormat() gfx.Format { return ctx.depthFormat }

func (ctx *DeviceContext) name(kind gfx.ObjectKind, handle gfx.Handle, format string, args ...interface{}) {
	ctx.namer.SetObjectName(kind, handle, fmt.Sprintf(format, args...))
}

func clamp[T cmp.Ordered](val, min, max T) T {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
