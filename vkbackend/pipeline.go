package vkbackend

import (
	vk "github.com/vulkan-go/vulkan"

	"vkframe/gfx"
)

// CreateRenderPass implements gfx.PipelineAPI.
func (b *Backend) CreateRenderPass(device gfx.Device, info gfx.RenderPassInfo) (gfx.RenderPass, error) {
	colorAttachment := vk.AttachmentDescription{
		Format:         vk.Format(info.ColorFormat),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}

	depthAttachment := vk.AttachmentDescription{
		Format:         vk.Format(info.DepthFormat),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	colorAttachmentRef := vk.AttachmentReference{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}

	depthAttachmentRef := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       []vk.AttachmentReference{colorAttachmentRef},
		PDepthStencilAttachment: &depthAttachmentRef,
	}

	dependency := vk.SubpassDependency{
		SrcSubpass: vk.SubpassExternal,
		DstSubpass: 0,
		SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit) |
			vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}

	attachments := []vk.AttachmentDescription{
		colorAttachment,
		depthAttachment,
	}

	renderPassInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var renderPass vk.RenderPass
	res := vk.CreateRenderPass(b.devices.get(gfx.Handle(device)), &renderPassInfo, nil, &renderPass)
	if err := check(res, "vkCreateRenderPass"); err != nil {
		return gfx.NullRenderPass, err
	}
	return gfx.RenderPass(b.renderPasses.put(renderPass)), nil
}

// DestroyRenderPass implements gfx.PipelineAPI.
func (b *Backend) DestroyRenderPass(device gfx.Device, renderPass gfx.RenderPass) {
	if obj, ok := b.renderPasses.remove(gfx.Handle(renderPass)); ok {
		vk.DestroyRenderPass(b.devices.get(gfx.Handle(device)), obj, nil)
	}
}

// CreateFramebuffer implements gfx.PipelineAPI.
func (b *Backend) CreateFramebuffer(device gfx.Device, info gfx.FramebufferInfo) (gfx.Framebuffer, error) {
	attachments := make([]vk.ImageView, 0, len(info.Attachments))
	for _, view := range info.Attachments {
		attachments = append(attachments, b.imageViews.get(gfx.Handle(view)))
	}

	framebufferInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      b.renderPasses.get(gfx.Handle(info.RenderPass)),
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}

	var framebuffer vk.Framebuffer
	res := vk.CreateFramebuffer(b.devices.get(gfx.Handle(device)), &framebufferInfo, nil, &framebuffer)
	if err := check(res, "vkCreateFramebuffer"); err != nil {
		return 0, err
	}
	return gfx.Framebuffer(b.framebuffers.put(framebuffer)), nil
}

// DestroyFramebuffer implements gfx.PipelineAPI.
func (b *Backend) DestroyFramebuffer(device gfx.Device, framebuffer gfx.Framebuffer) {
	if obj, ok := b.framebuffers.remove(gfx.Handle(framebuffer)); ok {
		vk.DestroyFramebuffer(b.devices.get(gfx.Handle(device)), obj, nil)
	}
}

// CreateShaderModule implements gfx.PipelineAPI.
func (b *Backend) CreateShaderModule(device gfx.Device, code []byte) (gfx.ShaderModule, error) {
	words, err := spirvWords(code)
	if err != nil {
		return 0, err
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}

	var shaderModule vk.ShaderModule
	res := vk.CreateShaderModule(b.devices.get(gfx.Handle(device)), &createInfo, nil, &shaderModule)
	if err := check(res, "vkCreateShaderModule"); err != nil {
		return 0, err
	}
	return gfx.ShaderModule(b.shaderModules.put(shaderModule)), nil
}

// DestroyShaderModule implements gfx.PipelineAPI.
func (b *Backend) DestroyShaderModule(device gfx.Device, module gfx.ShaderModule) {
	if obj, ok := b.shaderModules.remove(gfx.Handle(module)); ok {
		vk.DestroyShaderModule(b.devices.get(gfx.Handle(device)), obj, nil)
	}
}

// CreateDescriptorSetLayout implements gfx.PipelineAPI.
func (b *Backend) CreateDescriptorSetLayout(device gfx.Device, bindings []gfx.DescriptorBinding) (gfx.DescriptorSetLayout, error) {
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, 0, len(bindings))
	for _, binding := range bindings {
		layoutBindings = append(layoutBindings, vk.DescriptorSetLayoutBinding{
			Binding:         binding.Binding,
			DescriptorType:  vk.DescriptorType(binding.Type),
			DescriptorCount: binding.Count,
			StageFlags:      vk.ShaderStageFlags(binding.Stages),
		})
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}

	var layout vk.DescriptorSetLayout
	res := vk.CreateDescriptorSetLayout(b.devices.get(gfx.Handle(device)), &layoutInfo, nil, &layout)
	if err := check(res, "vkCreateDescriptorSetLayout"); err != nil {
		return 0, err
	}
	return gfx.DescriptorSetLayout(b.setLayouts.put(layout)), nil
}

// DestroyDescriptorSetLayout implements gfx.PipelineAPI.
func (b *Backend) DestroyDescriptorSetLayout(device gfx.Device, layout gfx.DescriptorSetLayout) {
	if obj, ok := b.setLayouts.remove(gfx.Handle(layout)); ok {
		vk.DestroyDescriptorSetLayout(b.devices.get(gfx.Handle(device)), obj, nil)
	}
}

// CreatePipelineLayout implements gfx.PipelineAPI.
func (b *Backend) CreatePipelineLayout(device gfx.Device, info gfx.PipelineLayoutInfo) (gfx.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, 0, len(info.SetLayouts))
	for _, layout := range info.SetLayouts {
		setLayouts = append(setLayouts, b.setLayouts.get(gfx.Handle(layout)))
	}

	ranges := make([]vk.PushConstantRange, 0, len(info.PushConstants))
	for _, r := range info.PushConstants {
		ranges = append(ranges, vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		})
	}

	pipelineLayoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}

	var pipelineLayout vk.PipelineLayout
	res := vk.CreatePipelineLayout(b.devices.get(gfx.Handle(device)), &pipelineLayoutInfo, nil, &pipelineLayout)
	if err := check(res, "vkCreatePipelineLayout"); err != nil {
		return 0, err
	}
	return gfx.PipelineLayout(b.pipelineLayouts.put(pipelineLayout)), nil
}

// DestroyPipelineLayout implements gfx.PipelineAPI.
func (b *Backend) DestroyPipelineLayout(device gfx.Device, layout gfx.PipelineLayout) {
	if obj, ok := b.pipelineLayouts.remove(gfx.Handle(layout)); ok {
		vk.DestroyPipelineLayout(b.devices.get(gfx.Handle(device)), obj, nil)
	}
}

// CreateGraphicsPipeline implements gfx.PipelineAPI.
func (b *Backend) CreateGraphicsPipeline(device gfx.Device, info gfx.GraphicsPipelineInfo) (gfx.Pipeline, error) {
	shaderStages := make([]vk.PipelineShaderStageCreateInfo, 0, len(info.Stages))
	for _, stage := range info.Stages {
		shaderStages = append(shaderStages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(stage.Stage),
			Module: b.shaderModules.get(gfx.Handle(stage.Module)),
			PName:  cString(stage.Entry),
		})
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if info.VertexStride > 0 {
		attributes := make([]vk.VertexInputAttributeDescription, 0, len(info.VertexAttributes))
		for _, attr := range info.VertexAttributes {
			attributes = append(attributes, vk.VertexInputAttributeDescription{
				Binding:  0,
				Location: attr.Location,
				Format:   vk.Format(attr.Format),
				Offset:   attr.Offset,
			})
		}

		vertexInputInfo.VertexBindingDescriptionCount = 1
		vertexInputInfo.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    info.VertexStride,
			InputRate: vk.VertexInputRateVertex,
		}}
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInputInfo.PVertexAttributeDescriptions = attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	var tessellation *vk.PipelineTessellationStateCreateInfo
	if info.PatchControlPoints > 0 {
		inputAssembly.Topology = vk.PrimitiveTopologyPatchList
		tessellation = &vk.PipelineTessellationStateCreateInfo{
			SType:              vk.StructureTypePipelineTessellationStateCreateInfo,
			PatchControlPoints: info.PatchControlPoints,
		}
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}

	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	if info.Wireframe {
		rasterizer.PolygonMode = vk.PolygonModeLine
	}
	if info.CullBack {
		rasterizer.CullMode = vk.CullModeFlags(vk.CullModeBackBit)
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vkBool(info.DepthTest),
		DepthWriteEnable:      vkBool(info.DepthTest),
		DepthCompareOp:        vk.CompareOpLess,
		DepthBoundsTestEnable: vk.False,
		MinDepthBounds:        0,
		MaxDepthBounds:        1,
		StencilTestEnable:     vk.False,
	}

	colorBlendAttachment := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(
			vk.ColorComponentRBit |
				vk.ColorComponentGBit |
				vk.ColorComponentBBit |
				vk.ColorComponentABit,
		),
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorOne,
		DstColorBlendFactor: vk.BlendFactorZero,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
	}
	if info.Blend {
		colorBlendAttachment.BlendEnable = vk.True
		colorBlendAttachment.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		colorBlendAttachment.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		colorBlendAttachment.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	}

	colorBlending := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments: []vk.PipelineColorBlendAttachmentState{
			colorBlendAttachment,
		},
	}

	var flags vk.PipelineCreateFlags
	if info.AllowDerivatives {
		flags |= vk.PipelineCreateFlags(vk.PipelineCreateAllowDerivativesBit)
	}
	base, hasBase := b.pipelines.get(gfx.Handle(info.Base)), !gfx.Handle(info.Base).IsNull()
	if hasBase {
		flags |= vk.PipelineCreateFlags(vk.PipelineCreateDerivativeBit)
	}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		Flags:               flags,
		StageCount:          uint32(len(shaderStages)),
		PStages:             shaderStages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PTessellationState:  tessellation,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlending,
		PDynamicState:       &dynamicState,
		Layout:              b.pipelineLayouts.get(gfx.Handle(info.Layout)),
		RenderPass:          b.renderPasses.get(gfx.Handle(info.RenderPass)),
		Subpass:             0,
		BasePipelineHandle:  base,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(
		b.devices.get(gfx.Handle(device)),
		vk.PipelineCache(vk.NullHandle),
		1,
		[]vk.GraphicsPipelineCreateInfo{pipelineInfo},
		nil,
		pipelines,
	)
	if err := check(res, "vkCreateGraphicsPipelines"); err != nil {
		return gfx.NullPipeline, err
	}
	return gfx.Pipeline(b.pipelines.put(pipelines[0])), nil
}

// DestroyPipeline implements gfx.PipelineAPI.
func (b *Backend) DestroyPipeline(device gfx.Device, pipeline gfx.Pipeline) {
	if obj, ok := b.pipelines.remove(gfx.Handle(pipeline)); ok {
		vk.DestroyPipeline(b.devices.get(gfx.Handle(device)), obj, nil)
	}
}

// CreateDescriptorPool implements gfx.PipelineAPI.
func (b *Backend) CreateDescriptorPool(device gfx.Device, info gfx.DescriptorPoolInfo) (gfx.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, 0, len(info.Sizes))
	for _, size := range info.Sizes {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(size.Type),
			DescriptorCount: size.Count,
		})
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
		MaxSets:       info.MaxSets,
	}

	var descriptorPool vk.DescriptorPool
	res := vk.CreateDescriptorPool(b.devices.get(gfx.Handle(device)), &poolInfo, nil, &descriptorPool)
	if err := check(res, "vkCreateDescriptorPool"); err != nil {
		return gfx.NullDescriptorPool, err
	}
	return gfx.DescriptorPool(b.descriptorPools.put(descriptorPool)), nil
}

// DestroyDescriptorPool implements gfx.PipelineAPI. Sets allocated from the
// pool go with it.
func (b *Backend) DestroyDescriptorPool(device gfx.Device, pool gfx.DescriptorPool) {
	obj, ok := b.descriptorPools.remove(gfx.Handle(pool))
	if !ok {
		return
	}
	b.forgetSets(pool)
	vk.DestroyDescriptorPool(b.devices.get(gfx.Handle(device)), obj, nil)
}

// ResetDescriptorPool implements gfx.PipelineAPI.
func (b *Backend) ResetDescriptorPool(device gfx.Device, pool gfx.DescriptorPool) error {
	res := vk.ResetDescriptorPool(
		b.devices.get(gfx.Handle(device)),
		b.descriptorPools.get(gfx.Handle(pool)),
		0,
	)
	if err := check(res, "vkResetDescriptorPool"); err != nil {
		return err
	}
	b.forgetSets(pool)
	return nil
}

func (b *Backend) forgetSets(pool gfx.DescriptorPool) {
	b.mu.Lock()
	sets := b.poolSets[pool]
	delete(b.poolSets, pool)
	b.mu.Unlock()

	for _, set := range sets {
		b.descriptorSets.remove(gfx.Handle(set))
	}
}

// AllocateDescriptorSet implements gfx.PipelineAPI.
func (b *Backend) AllocateDescriptorSet(
	device gfx.Device,
	pool gfx.DescriptorPool,
	layout gfx.DescriptorSetLayout,
) (gfx.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     b.descriptorPools.get(gfx.Handle(pool)),
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{b.setLayouts.get(gfx.Handle(layout))},
	}

	var set vk.DescriptorSet
	res := vk.AllocateDescriptorSets(b.devices.get(gfx.Handle(device)), &allocInfo, &set)
	if err := check(res, "vkAllocateDescriptorSets"); err != nil {
		return 0, err
	}

	handle := gfx.DescriptorSet(b.descriptorSets.put(set))

	b.mu.Lock()
	b.poolSets[pool] = append(b.poolSets[pool], handle)
	b.mu.Unlock()

	return handle, nil
}

// UpdateDescriptorSet implements gfx.PipelineAPI.
func (b *Backend) UpdateDescriptorSet(device gfx.Device, set gfx.DescriptorSet, writes []gfx.DescriptorWrite) {
	if len(writes) == 0 {
		return
	}

	dstSet := b.descriptorSets.get(gfx.Handle(set))
	descriptorWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, write := range writes {
		if write.Type == gfx.DescriptorTypeCombinedImageSampler {
			descriptorWrites = append(descriptorWrites, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          dstSet,
				DstBinding:      write.Binding,
				DstArrayElement: 0,
				DescriptorType:  vk.DescriptorType(write.Type),
				DescriptorCount: 1,
				PImageInfo: []vk.DescriptorImageInfo{{
					Sampler:     b.samplers.get(gfx.Handle(write.Sampler)),
					ImageView:   b.imageViews.get(gfx.Handle(write.ImageView)),
					ImageLayout: vk.ImageLayout(write.ImageLayout),
				}},
			})
			continue
		}

		size := vk.DeviceSize(write.Range)
		if write.Range == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}

		descriptorWrites = append(descriptorWrites, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          dstSet,
			DstBinding:      write.Binding,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorType(write.Type),
			DescriptorCount: 1,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: b.buffers.get(gfx.Handle(write.Buffer)),
				Offset: vk.DeviceSize(write.Offset),
				Range:  size,
			}},
		})
	}

	vk.UpdateDescriptorSets(
		b.devices.get(gfx.Handle(device)),
		uint32(len(descriptorWrites)),
		descriptorWrites,
		0,
		nil,
	)
}
