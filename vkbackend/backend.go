// Package vkbackend implements gfx.Backend on top of the Vulkan API as exposed by
// github.com/vulkan-go/vulkan. Vulkan objects never leave the package: the
// renderer only sees opaque handles which the backend resolves through one table
// per object kind.
package vkbackend

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"vkframe/gfx"
	"vkframe/queues"
)

// Init loads the Vulkan loader through GLFW. GLFW must already be initialized
// and Init must run before any other function of the package.
func Init() error {
	getInstanceProcAddr = glfw.GetVulkanGetInstanceProcAddress()
	vk.SetGetInstanceProcAddr(getInstanceProcAddr)

	if err := vk.Init(); err != nil {
		return errors.Wrap(err, "failed to init Vulkan Go")
	}
	return nil
}

// rawOf returns the value of a Vulkan handle. Every handle type of the bindings
// is a pointer on 64 bit platforms.
func rawOf[T ~*E, E any](obj T) uint64 {
	return rawPointer(unsafe.Pointer(obj))
}

// Backend is a gfx.Backend talking to a real Vulkan driver. Use New.
type Backend struct {
	instances       *table[vk.Instance]
	debugCallbacks  *table[vk.DebugReportCallback]
	surfaces        *table[vk.Surface]
	physicalDevices *table[vk.PhysicalDevice]
	devices         *table[vk.Device]
	queues          *table[vk.Queue]
	memory          *table[vk.DeviceMemory]
	buffers         *table[vk.Buffer]
	images          *table[vk.Image]
	imageViews      *table[vk.ImageView]
	samplers        *table[vk.Sampler]
	swapchains      *table[vk.Swapchain]
	renderPasses    *table[vk.RenderPass]
	framebuffers    *table[vk.Framebuffer]
	shaderModules   *table[vk.ShaderModule]
	setLayouts      *table[vk.DescriptorSetLayout]
	pipelineLayouts *table[vk.PipelineLayout]
	pipelines       *table[vk.Pipeline]
	commandPools    *table[vk.CommandPool]
	commandBuffers  *table[vk.CommandBuffer]
	descriptorPools *table[vk.DescriptorPool]
	descriptorSets  *table[vk.DescriptorSet]
	fences          *table[vk.Fence]
	semaphores      *table[vk.Semaphore]

	named map[gfx.ObjectKind]namedTable

	// Children which go away together with their parent.
	mu              sync.Mutex
	swapchainImages map[gfx.Swapchain][]gfx.Image
	poolBuffers     map[gfx.CommandPool][]gfx.CommandBuffer
	poolSets        map[gfx.DescriptorPool][]gfx.DescriptorSet
}

var _ gfx.Backend = (*Backend)(nil)

// New returns a backend with no objects. Init must have been called.
func New() *Backend {
	b := &Backend{
		instances:       newTable(gfx.ObjectInstance, rawOf[vk.Instance]),
		debugCallbacks:  newTable(gfx.ObjectUnknown, rawOf[vk.DebugReportCallback]),
		surfaces:        newTable(gfx.ObjectSurface, rawOf[vk.Surface]),
		physicalDevices: newTable(gfx.ObjectPhysicalDevice, rawOf[vk.PhysicalDevice]),
		devices:         newTable(gfx.ObjectDevice, rawOf[vk.Device]),
		queues:          newTable(gfx.ObjectQueue, rawOf[vk.Queue]),
		memory:          newTable(gfx.ObjectMemory, rawOf[vk.DeviceMemory]),
		buffers:         newTable(gfx.ObjectBuffer, rawOf[vk.Buffer]),
		images:          newTable(gfx.ObjectImage, rawOf[vk.Image]),
		imageViews:      newTable(gfx.ObjectImageView, rawOf[vk.ImageView]),
		samplers:        newTable(gfx.ObjectSampler, rawOf[vk.Sampler]),
		swapchains:      newTable(gfx.ObjectSwapchain, rawOf[vk.Swapchain]),
		renderPasses:    newTable(gfx.ObjectRenderPass, rawOf[vk.RenderPass]),
		framebuffers:    newTable(gfx.ObjectFramebuffer, rawOf[vk.Framebuffer]),
		shaderModules:   newTable(gfx.ObjectShaderModule, rawOf[vk.ShaderModule]),
		setLayouts:      newTable(gfx.ObjectDescriptorSetLayout, rawOf[vk.DescriptorSetLayout]),
		pipelineLayouts: newTable(gfx.ObjectPipelineLayout, rawOf[vk.PipelineLayout]),
		pipelines:       newTable(gfx.ObjectPipeline, rawOf[vk.Pipeline]),
		commandPools:    newTable(gfx.ObjectCommandPool, rawOf[vk.CommandPool]),
		commandBuffers:  newTable(gfx.ObjectCommandBuffer, rawOf[vk.CommandBuffer]),
		descriptorPools: newTable(gfx.ObjectDescriptorPool, rawOf[vk.DescriptorPool]),
		descriptorSets:  newTable(gfx.ObjectDescriptorSet, rawOf[vk.DescriptorSet]),
		fences:          newTable(gfx.ObjectFence, rawOf[vk.Fence]),
		semaphores:      newTable(gfx.ObjectSemaphore, rawOf[vk.Semaphore]),

		swapchainImages: make(map[gfx.Swapchain][]gfx.Image),
		poolBuffers:     make(map[gfx.CommandPool][]gfx.CommandBuffer),
		poolSets:        make(map[gfx.DescriptorPool][]gfx.DescriptorSet),
	}

	b.named = map[gfx.ObjectKind]namedTable{
		gfx.ObjectInstance:            b.instances,
		gfx.ObjectSurface:             b.surfaces,
		gfx.ObjectPhysicalDevice:      b.physicalDevices,
		gfx.ObjectDevice:              b.devices,
		gfx.ObjectQueue:               b.queues,
		gfx.ObjectMemory:              b.memory,
		gfx.ObjectBuffer:              b.buffers,
		gfx.ObjectImage:               b.images,
		gfx.ObjectImageView:           b.imageViews,
		gfx.ObjectSampler:             b.samplers,
		gfx.ObjectSwapchain:           b.swapchains,
		gfx.ObjectRenderPass:          b.renderPasses,
		gfx.ObjectFramebuffer:         b.framebuffers,
		gfx.ObjectShaderModule:        b.shaderModules,
		gfx.ObjectDescriptorSetLayout: b.setLayouts,
		gfx.ObjectPipelineLayout:      b.pipelineLayouts,
		gfx.ObjectPipeline:            b.pipelines,
		gfx.ObjectCommandPool:         b.commandPools,
		gfx.ObjectCommandBuffer:       b.commandBuffers,
		gfx.ObjectDescriptorPool:      b.descriptorPools,
		gfx.ObjectDescriptorSet:       b.descriptorSets,
		gfx.ObjectFence:               b.fences,
		gfx.ObjectSemaphore:           b.semaphores,
	}

	return b
}

// Live returns how many objects of each kind the backend still knows about.
// Physical devices and queues are never destroyed and are left out.
func (b *Backend) Live() map[gfx.ObjectKind]int {
	live := make(map[gfx.ObjectKind]int)
	for kind, t := range b.named {
		if kind == gfx.ObjectPhysicalDevice || kind == gfx.ObjectQueue {
			continue
		}
		if n := t.len(); n > 0 {
			live[kind] = n
		}
	}
	if n := b.debugCallbacks.len(); n > 0 {
		live[gfx.ObjectUnknown] = n
	}
	return live
}

// InstanceVersion implements gfx.InstanceAPI.
func (b *Backend) InstanceVersion() (gfx.Version, error) {
	return enumerateInstanceVersion()
}

// InstanceExtensions implements gfx.InstanceAPI.
func (b *Backend) InstanceExtensions() ([]string, error) {
	var count uint32
	err := check(vk.EnumerateInstanceExtensionProperties("", &count, nil),
		"vkEnumerateInstanceExtensionProperties")
	if err != nil {
		return nil, err
	}

	properties := make([]vk.ExtensionProperties, count)
	err = check(vk.EnumerateInstanceExtensionProperties("", &count, properties),
		"vkEnumerateInstanceExtensionProperties")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, count)
	for _, ext := range properties[:count] {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// InstanceLayers implements gfx.InstanceAPI.
func (b *Backend) InstanceLayers() ([]string, error) {
	var count uint32
	if err := check(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return nil, err
	}

	properties := make([]vk.LayerProperties, count)
	if err := check(vk.EnumerateInstanceLayerProperties(&count, properties), "vkEnumerateInstanceLayerProperties"); err != nil {
		return nil, err
	}

	names := make([]string, 0, count)
	for _, layer := range properties[:count] {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, nil
}

// CreateInstance implements gfx.InstanceAPI.
func (b *Backend) CreateInstance(info gfx.InstanceInfo) (gfx.Instance, error) {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   cString(info.AppName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "vkframe\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         uint32(info.APIVersion),
	}

	extensions := cStrings(info.Extensions)
	layers := cStrings(info.Layers)

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var instance vk.Instance
	if err := check(vk.CreateInstance(&createInfo, nil, &instance), "vkCreateInstance"); err != nil {
		return gfx.NullInstance, err
	}

	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return gfx.NullInstance, errors.Wrap(err, "vkInitInstance")
	}

	return gfx.Instance(b.instances.put(instance)), nil
}

// DestroyInstance implements gfx.InstanceAPI.
func (b *Backend) DestroyInstance(instance gfx.Instance) {
	if obj, ok := b.instances.remove(gfx.Handle(instance)); ok {
		vk.DestroyInstance(obj, nil)
	}
}

// CreateDebugMessenger implements gfx.InstanceAPI. Messages of the validation
// layers end up in the package logger.
func (b *Backend) CreateDebugMessenger(instance gfx.Instance) (gfx.DebugMessenger, error) {
	createInfo := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(
			vk.DebugReportErrorBit |
				vk.DebugReportWarningBit |
				vk.DebugReportPerformanceWarningBit),
		PfnCallback: b.debugReport,
	}

	var callback vk.DebugReportCallback
	res := vk.CreateDebugReportCallback(b.instances.get(gfx.Handle(instance)), &createInfo, nil, &callback)
	if err := check(res, "vkCreateDebugReportCallback"); err != nil {
		return gfx.NullDebugMessenger, err
	}
	return gfx.DebugMessenger(b.debugCallbacks.put(callback)), nil
}

// DestroyDebugMessenger implements gfx.InstanceAPI.
func (b *Backend) DestroyDebugMessenger(instance gfx.Instance, messenger gfx.DebugMessenger) {
	if obj, ok := b.debugCallbacks.remove(gfx.Handle(messenger)); ok {
		vk.DestroyDebugReportCallback(b.instances.get(gfx.Handle(instance)), obj, nil)
	}
}

// CreateSurface implements gfx.InstanceAPI.
func (b *Backend) CreateSurface(instance gfx.Instance, window gfx.SurfaceSource) (gfx.Surface, error) {
	surfacePtr, err := window.CreateWindowSurface(b.instances.get(gfx.Handle(instance)), nil)
	if err != nil {
		return gfx.NullSurface, errors.Wrap(err, "cannot create surface within GLFW window")
	}
	return gfx.Surface(b.surfaces.put(vk.SurfaceFromPointer(surfacePtr))), nil
}

// DestroySurface implements gfx.InstanceAPI.
func (b *Backend) DestroySurface(instance gfx.Instance, surface gfx.Surface) {
	if obj, ok := b.surfaces.remove(gfx.Handle(surface)); ok {
		vk.DestroySurface(b.instances.get(gfx.Handle(instance)), obj, nil)
	}
}

// PhysicalDevices implements gfx.InstanceAPI.
func (b *Backend) PhysicalDevices(instance gfx.Instance) ([]gfx.PhysicalDevice, error) {
	inst := b.instances.get(gfx.Handle(instance))

	var count uint32
	if err := check(vk.EnumeratePhysicalDevices(inst, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	devices := make([]vk.PhysicalDevice, count)
	if err := check(vk.EnumeratePhysicalDevices(inst, &count, devices), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}

	handles := make([]gfx.PhysicalDevice, 0, count)
	for _, pd := range devices[:count] {
		handles = append(handles, gfx.PhysicalDevice(b.physicalDevices.put(pd)))
	}
	return handles, nil
}

// DescribePhysicalDevice implements gfx.InstanceAPI.
func (b *Backend) DescribePhysicalDevice(physicalDevice gfx.PhysicalDevice, surface gfx.Surface) (gfx.DeviceInfo, error) {
	pd := b.physicalDevices.get(gfx.Handle(physicalDevice))
	surf := b.surfaces.get(gfx.Handle(surface))

	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &properties)
	properties.Deref()

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(pd, &features)
	features.Deref()

	info := gfx.DeviceInfo{
		Name:       vk.ToString(properties.DeviceName[:]),
		APIVersion: gfx.Version(properties.ApiVersion),
		Discrete:   properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu,
		Features:   featuresFromVk(features),
	}

	var err error
	if info.Extensions, err = deviceExtensions(pd); err != nil {
		return info, err
	}
	if info.QueueFamilies, err = queueFamilies(pd, surf); err != nil {
		return info, err
	}
	info.DepthFormats = depthFormats(pd)
	if info.SurfaceFormats, err = surfaceFormats(pd, surf); err != nil {
		return info, err
	}
	if info.PresentModes, err = presentModes(pd, surf); err != nil {
		return info, err
	}
	info.MemoryTypes = memoryTypes(pd)

	Logger().Debug("vulkan: physical device",
		slog.String("name", info.Name),
		slog.String("api", info.APIVersion.String()),
		slog.Bool("discrete", info.Discrete),
	)
	return info, nil
}

func deviceExtensions(pd vk.PhysicalDevice) ([]string, error) {
	var count uint32
	err := check(vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil),
		"vkEnumerateDeviceExtensionProperties")
	if err != nil {
		return nil, err
	}

	properties := make([]vk.ExtensionProperties, count)
	err = check(vk.EnumerateDeviceExtensionProperties(pd, "", &count, properties),
		"vkEnumerateDeviceExtensionProperties")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, count)
	for _, ext := range properties[:count] {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

func queueFamilies(pd vk.PhysicalDevice, surface vk.Surface) ([]queues.Family, error) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)

	properties := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, properties)

	families := make([]queues.Family, 0, count)
	for i, family := range properties[:count] {
		family.Deref()

		var hasPresent vk.Bool32
		res := vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), surface, &hasPresent)
		if err := check(res, "vkGetPhysicalDeviceSurfaceSupport"); err != nil {
			return nil, errors.Wrapf(err, "queue family %d", i)
		}

		families = append(families, queues.Family{
			Graphics: family.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0,
			Present:  hasPresent.B(),
		})
	}
	return families, nil
}

func depthFormats(pd vk.PhysicalDevice) []gfx.Format {
	var supported []gfx.Format
	for _, format := range gfx.DepthFormats {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(pd, vk.Format(format), &props)
		props.Deref()

		features := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
		if props.OptimalTilingFeatures&features == features {
			supported = append(supported, format)
		}
	}
	return supported
}

func surfaceFormats(pd vk.PhysicalDevice, surface vk.Surface) ([]gfx.SurfaceFormat, error) {
	var count uint32
	res := vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &count, nil)
	if err := check(res, "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	formats := make([]vk.SurfaceFormat, count)
	res = vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &count, formats)
	if err := check(res, "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return nil, err
	}

	out := make([]gfx.SurfaceFormat, 0, count)
	for _, format := range formats[:count] {
		format.Deref()
		out = append(out, gfx.SurfaceFormat{
			Format:     gfx.Format(format.Format),
			ColorSpace: gfx.ColorSpace(format.ColorSpace),
		})
	}
	return out, nil
}

func presentModes(pd vk.PhysicalDevice, surface vk.Surface) ([]gfx.PresentMode, error) {
	var count uint32
	res := vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &count, nil)
	if err := check(res, "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	modes := make([]vk.PresentMode, count)
	res = vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &count, modes)
	if err := check(res, "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return nil, err
	}

	out := make([]gfx.PresentMode, 0, count)
	for _, mode := range modes[:count] {
		out = append(out, gfx.PresentMode(mode))
	}
	return out, nil
}

func memoryTypes(pd vk.PhysicalDevice) []gfx.MemoryType {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &memProperties)
	memProperties.Deref()

	types := make([]gfx.MemoryType, 0, memProperties.MemoryTypeCount)
	for i := uint32(0); i < memProperties.MemoryTypeCount; i++ {
		memType := memProperties.MemoryTypes[i]
		memType.Deref()

		types = append(types, gfx.MemoryType{
			Properties: gfx.MemoryProperty(memType.PropertyFlags),
			HeapIndex:  memType.HeapIndex,
		})
	}
	return types
}
