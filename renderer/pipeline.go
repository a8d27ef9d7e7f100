package renderer

import (
	"github.com/cockroachdb/errors"

	"vkframe/gfx"
	"vkframe/rollback"
)

// ShaderSource hands out SPIR-V byte-code by name.
type ShaderSource interface {
	Shader(name string) ([]byte, error)
}

// Shader names looked up in the ShaderSource.
const (
	MeshVertexShader      = "mesh.vert.spv"
	MeshTessControlShader = "mesh.tesc.spv"
	MeshTessEvalShader    = "mesh.tese.spv"
	MeshFragmentShader    = "mesh.frag.spv"

	OverlayVertexShader   = "overlay.vert.spv"
	OverlayFragmentShader = "overlay.frag.spv"
)

// Descriptor bindings of the mesh pipelines.
const (
	BindingUniforms  = 0
	BindingVertices  = 1
	BindingInstances = 2
)

// MaxPushConstants is the size of the push constant range of the mesh pipelines.
// Scenes may push less.
const MaxPushConstants = 128

// overlayPushConstants is scale and translate, two vec2.
const overlayPushConstants = 16

// BindingOverlayTexture is the combined image sampler of the overlay pipeline.
const BindingOverlayTexture = 0

// pipelines is the render pass and everything needed to bind the mesh and the
// overlay pipelines.
type pipelines struct {
	renderPass gfx.RenderPass

	setLayout  gfx.DescriptorSetLayout
	meshLayout gfx.PipelineLayout
	solid      gfx.Pipeline

	// wireframe is a derivative of solid which draws lines.
	wireframe gfx.Pipeline

	overlaySetLayout gfx.DescriptorSetLayout
	overlayLayout    gfx.PipelineLayout
	overlay          gfx.Pipeline

	// sampler reads every overlay texture. whiteTexture stands in when a frame
	// brings none, so untextured geometry shows its vertex colors.
	sampler      gfx.Sampler
	whiteTexture *Image
}

func newPipelines(ctx *DeviceContext, shaders ShaderSource) (*pipelines, error) {
	backend, device := ctx.backend, ctx.device
	p := &pipelines{}

	rb := rollback.New("pipelines", Logger())
	defer unwind(rb)

	renderPass, err := backend.CreateRenderPass(device, gfx.RenderPassInfo{
		ColorFormat: ctx.surfaceFormat.Format,
		DepthFormat: ctx.depthFormat,
	})
	if err != nil {
		return nil, creationFailed(err, "createRenderPass")
	}
	p.renderPass = renderPass
	rb.Push("render pass", func() {
		backend.DestroyRenderPass(device, renderPass)
	})
	ctx.name(gfx.ObjectRenderPass, gfx.Handle(renderPass), "main render pass")

	meshStages := gfx.ShaderStageVertex | gfx.ShaderStageFragment
	if ctx.cfg.Tessellation {
		meshStages |= gfx.ShaderStageTessControl | gfx.ShaderStageTessEvaluation
	}

	setLayout, err := backend.CreateDescriptorSetLayout(device, []gfx.DescriptorBinding{
		{Binding: BindingUniforms, Type: gfx.DescriptorTypeUniformBuffer, Count: 1, Stages: meshStages},
		{Binding: BindingVertices, Type: gfx.DescriptorTypeStorageBuffer, Count: 1, Stages: meshStages},
		{Binding: BindingInstances, Type: gfx.DescriptorTypeStorageBuffer, Count: 1, Stages: meshStages},
	})
	if err != nil {
		return nil, creationFailed(err, "createDescriptorSetLayout")
	}
	p.setLayout = setLayout
	rb.Push("descriptor set layout", func() {
		backend.DestroyDescriptorSetLayout(device, setLayout)
	})
	ctx.name(gfx.ObjectDescriptorSetLayout, gfx.Handle(setLayout), "mesh set layout")

	meshLayout, err := backend.CreatePipelineLayout(device, gfx.PipelineLayoutInfo{
		SetLayouts: []gfx.DescriptorSetLayout{setLayout},
		PushConstants: []gfx.PushConstantRange{
			{Stages: meshStages, Offset: 0, Size: MaxPushConstants},
		},
	})
	if err != nil {
		return nil, creationFailed(err, "createPipelineLayout")
	}
	p.meshLayout = meshLayout
	rb.Push("mesh pipeline layout", func() {
		backend.DestroyPipelineLayout(device, meshLayout)
	})
	ctx.name(gfx.ObjectPipelineLayout, gfx.Handle(meshLayout), "mesh pipeline layout")

	names := []string{MeshVertexShader, MeshFragmentShader}
	stages := []gfx.ShaderStage{gfx.ShaderStageVertex, gfx.ShaderStageFragment}
	if ctx.cfg.Tessellation {
		names = []string{MeshVertexShader, MeshTessControlShader, MeshTessEvalShader, MeshFragmentShader}
		stages = []gfx.ShaderStage{
			gfx.ShaderStageVertex,
			gfx.ShaderStageTessControl,
			gfx.ShaderStageTessEvaluation,
			gfx.ShaderStageFragment,
		}
	}

	meshModules, err := loadShaderStages(ctx, shaders, names, stages)
	if err != nil {
		return nil, err
	}
	defer destroyShaderStages(ctx, meshModules)

	info := gfx.GraphicsPipelineInfo{
		Stages:           meshModules,
		Layout:           meshLayout,
		RenderPass:       renderPass,
		CullBack:         true,
		DepthTest:        true,
		AllowDerivatives: true,
	}
	if ctx.cfg.Tessellation {
		info.PatchControlPoints = 3
	}

	solid, err := backend.CreateGraphicsPipeline(device, info)
	if err != nil {
		return nil, creationFailed(err, "createGraphicsPipeline solid")
	}
	p.solid = solid
	rb.Push("solid pipeline", func() {
		backend.DestroyPipeline(device, solid)
	})
	ctx.name(gfx.ObjectPipeline, gfx.Handle(solid), "mesh solid")

	info.Wireframe = true
	info.CullBack = false
	info.AllowDerivatives = false
	info.Base = solid

	wireframe, err := backend.CreateGraphicsPipeline(device, info)
	if err != nil {
		return nil, creationFailed(err, "createGraphicsPipeline wireframe")
	}
	p.wireframe = wireframe
	rb.Push("wireframe pipeline", func() {
		backend.DestroyPipeline(device, wireframe)
	})
	ctx.name(gfx.ObjectPipeline, gfx.Handle(wireframe), "mesh wireframe")

	overlaySetLayout, err := backend.CreateDescriptorSetLayout(device, []gfx.DescriptorBinding{
		{
			Binding: BindingOverlayTexture,
			Type:    gfx.DescriptorTypeCombinedImageSampler,
			Count:   1,
			Stages:  gfx.ShaderStageFragment,
		},
	})
	if err != nil {
		return nil, creationFailed(err, "createDescriptorSetLayout overlay")
	}
	p.overlaySetLayout = overlaySetLayout
	rb.Push("overlay set layout", func() {
		backend.DestroyDescriptorSetLayout(device, overlaySetLayout)
	})
	ctx.name(gfx.ObjectDescriptorSetLayout, gfx.Handle(overlaySetLayout), "overlay set layout")

	overlayLayout, err := backend.CreatePipelineLayout(device, gfx.PipelineLayoutInfo{
		SetLayouts: []gfx.DescriptorSetLayout{overlaySetLayout},
		PushConstants: []gfx.PushConstantRange{
			{Stages: gfx.ShaderStageVertex, Offset: 0, Size: overlayPushConstants},
		},
	})
	if err != nil {
		return nil, creationFailed(err, "createPipelineLayout overlay")
	}
	p.overlayLayout = overlayLayout
	rb.Push("overlay pipeline layout", func() {
		backend.DestroyPipelineLayout(device, overlayLayout)
	})
	ctx.name(gfx.ObjectPipelineLayout, gfx.Handle(overlayLayout), "overlay pipeline layout")

	overlayModules, err := loadShaderStages(ctx, shaders,
		[]string{OverlayVertexShader, OverlayFragmentShader},
		[]gfx.ShaderStage{gfx.ShaderStageVertex, gfx.ShaderStageFragment},
	)
	if err != nil {
		return nil, err
	}
	defer destroyShaderStages(ctx, overlayModules)

	overlay, err := backend.CreateGraphicsPipeline(device, gfx.GraphicsPipelineInfo{
		Stages:       overlayModules,
		Layout:       overlayLayout,
		RenderPass:   renderPass,
		VertexStride: OverlayVertexSize,
		VertexAttributes: []gfx.VertexAttribute{
			{Location: 0, Format: gfx.FormatR32G32Sfloat, Offset: 0},
			{Location: 1, Format: gfx.FormatR32G32Sfloat, Offset: 8},
			{Location: 2, Format: gfx.FormatR8G8B8A8Unorm, Offset: 16},
		},
		Blend: true,
	})
	if err != nil {
		return nil, creationFailed(err, "createGraphicsPipeline overlay")
	}
	p.overlay = overlay
	rb.Push("overlay pipeline", func() {
		backend.DestroyPipeline(device, overlay)
	})
	ctx.name(gfx.ObjectPipeline, gfx.Handle(overlay), "overlay")

	sampler, err := backend.CreateSampler(device, gfx.SamplerInfo{
		Filter:      gfx.FilterLinear,
		AddressMode: gfx.AddressModeRepeat,
	})
	if err != nil {
		return nil, creationFailed(err, "createSampler")
	}
	p.sampler = sampler
	rb.Push("overlay sampler", func() {
		backend.DestroySampler(device, sampler)
	})
	ctx.name(gfx.ObjectSampler, gfx.Handle(sampler), "overlay sampler")

	white, err := ctx.CreateImageWithData([]byte{0xff, 0xff, 0xff, 0xff},
		gfx.Extent2D{Width: 1, Height: 1}, gfx.FormatR8G8B8A8Unorm, "overlay white texture")
	if err != nil {
		return nil, err
	}
	p.whiteTexture = white
	rb.Push("overlay white texture", white.Release)

	rb.Defuse()
	return p, nil
}

// loadShaderStages creates one shader module per name. On failure the modules
// created so far are destroyed.
func loadShaderStages(
	ctx *DeviceContext,
	shaders ShaderSource,
	names []string,
	stages []gfx.ShaderStage,
) ([]gfx.ShaderStageInfo, error) {
	out := make([]gfx.ShaderStageInfo, 0, len(names))

	for i, name := range names {
		code, err := shaders.Shader(name)
		if err != nil {
			destroyShaderStages(ctx, out)
			return nil, errors.Wrapf(err, "reading shader %s", name)
		}

		module, err := ctx.backend.CreateShaderModule(ctx.device, code)
		if err != nil {
			destroyShaderStages(ctx, out)
			return nil, creationFailed(err, "createShaderModule "+name)
		}
		ctx.name(gfx.ObjectShaderModule, gfx.Handle(module), "%s", name)

		out = append(out, gfx.ShaderStageInfo{
			Stage:  stages[i],
			Module: module,
			Entry:  "main",
		})
	}

	return out, nil
}

func destroyShaderStages(ctx *DeviceContext, stages []gfx.ShaderStageInfo) {
	for _, stage := range stages {
		ctx.backend.DestroyShaderModule(ctx.device, stage.Module)
	}
}

// mesh returns the mesh pipeline for the fill mode.
func (p *pipelines) mesh(wireframe bool) gfx.Pipeline {
	if wireframe {
		return p.wireframe
	}
	return p.solid
}

func (p *pipelines) destroy(ctx *DeviceContext) {
	backend, device := ctx.backend, ctx.device

	p.whiteTexture.Release()
	backend.DestroySampler(device, p.sampler)
	backend.DestroyPipeline(device, p.overlay)
	backend.DestroyPipelineLayout(device, p.overlayLayout)
	backend.DestroyDescriptorSetLayout(device, p.overlaySetLayout)
	backend.DestroyPipeline(device, p.wireframe)
	backend.DestroyPipeline(device, p.solid)
	backend.DestroyPipelineLayout(device, p.meshLayout)
	backend.DestroyDescriptorSetLayout(device, p.setLayout)
	backend.DestroyRenderPass(device, p.renderPass)

	*p = pipelines{}
}
