package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

type shaderModule struct {
	handle core1_0.ShaderModule
}

func (c *Context) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Newf("shader bytecode of %d bytes is not whole words", len(code))
	}
	handle, _, err := c.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: spirvWords(code),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create shader module")
	}
	return &shaderModule{handle: handle}, nil
}

func (s *shaderModule) Destroy() { s.handle.Destroy(nil) }

type renderPass struct {
	handle core1_0.RenderPass
}

// CreateRenderPass builds a single subpass with one color attachment that
// ends ready to present and one cleared depth attachment.
func (c *Context) CreateRenderPass(info gpu.RenderPassInfo) (gpu.RenderPass, error) {
	handle, _, err := c.device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         toFormat(info.ColorFormat),
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
			{
				Format:         toFormat(info.DepthFormat),
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpDontCare,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create render pass")
	}
	return &renderPass{handle: handle}, nil
}

func (r *renderPass) Destroy() { r.handle.Destroy(nil) }

type framebuffer struct {
	handle core1_0.Framebuffer
}

func (c *Context) CreateFramebuffer(info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	attachments := make([]core1_0.ImageView, len(info.Attachments))
	for i, v := range info.Attachments {
		attachments[i] = v.(*imageView).handle
	}
	handle, _, err := c.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  info.RenderPass.(*renderPass).handle,
		Layers:      1,
		Attachments: attachments,
		Width:       info.Extent.Width,
		Height:      info.Extent.Height,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create framebuffer")
	}
	return &framebuffer{handle: handle}, nil
}

func (f *framebuffer) Destroy() { f.handle.Destroy(nil) }

type pipelineLayout struct {
	handle core1_0.PipelineLayout
}

func (c *Context) CreatePipelineLayout(info gpu.PipelineLayoutInfo) (gpu.PipelineLayout, error) {
	setLayouts := make([]core1_0.DescriptorSetLayout, len(info.SetLayouts))
	for i, l := range info.SetLayouts {
		setLayouts[i] = l.(*descriptorSetLayout).handle
	}
	handle, _, err := c.device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: setLayouts,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}
	return &pipelineLayout{handle: handle}, nil
}

func (l *pipelineLayout) Destroy() { l.handle.Destroy(nil) }

type graphicsPipeline struct {
	handle core1_0.Pipeline
}

func vertexInput(layout gpu.VertexLayout) *core1_0.PipelineVertexInputStateCreateInfo {
	input := &core1_0.PipelineVertexInputStateCreateInfo{}
	for _, b := range layout.Bindings {
		input.VertexBindingDescriptions = append(input.VertexBindingDescriptions, core1_0.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: core1_0.VertexInputRateVertex,
		})
	}
	for _, a := range layout.Attributes {
		input.VertexAttributeDescriptions = append(input.VertexAttributeDescriptions, core1_0.VertexInputAttributeDescription{
			Binding:  a.Binding,
			Location: uint32(a.Location),
			Format:   toFormat(a.Format),
			Offset:   a.Offset,
		})
	}
	return input
}

func (c *Context) CreateGraphicsPipeline(info gpu.PipelineInfo) (gpu.Pipeline, error) {
	dynamic := []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor}
	if info.DynamicLineWidth {
		dynamic = append(dynamic, core1_0.DynamicStateLineWidth)
	}

	pipelines, _, err := c.device.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{
		{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{
					Stage:  core1_0.StageVertex,
					Module: info.VertexShader.(*shaderModule).handle,
					Name:   "main",
				},
				{
					Stage:  core1_0.StageFragment,
					Module: info.FragmentShader.(*shaderModule).handle,
					Name:   "main",
				},
			},
			VertexInputState: vertexInput(info.Vertex),
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology:               topology(info.Topology),
				PrimitiveRestartEnable: false,
			},
			// Counts only; the values are set per frame.
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: []core1_0.Viewport{{}},
				Scissors:  []core1_0.Rect2D{{}},
			},
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				DepthClampEnable:        false,
				RasterizerDiscardEnable: false,

				PolygonMode: core1_0.PolygonModeFill,
				CullMode:    cullMode(info.CullMode),
				FrontFace:   frontFace(info.FrontFace),

				DepthBiasEnable: false,

				LineWidth: 1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				SampleShadingEnable:  false,
				RasterizationSamples: core1_0.Samples1,
				MinSampleShading:     1.0,
			},
			DepthStencilState: &core1_0.PipelineDepthStencilStateCreateInfo{
				DepthTestEnable:  info.DepthTest,
				DepthWriteEnable: info.DepthWrite,
				DepthCompareOp:   compareOp(info.DepthCompare),
			},
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOpEnabled: false,
				LogicOp:        core1_0.LogicOpCopy,

				BlendConstants: [4]float32{0, 0, 0, 0},
				Attachments: []core1_0.PipelineColorBlendAttachmentState{
					{
						BlendEnabled:   false,
						ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
					},
				},
			},
			DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
				DynamicStates: dynamic,
			},
			Layout:            info.Layout.(*pipelineLayout).handle,
			RenderPass:        info.RenderPass.(*renderPass).handle,
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create graphics pipeline")
	}
	return &graphicsPipeline{handle: pipelines[0]}, nil
}

func (p *graphicsPipeline) Destroy() { p.handle.Destroy(nil) }

type descriptorSetLayout struct {
	handle core1_0.DescriptorSetLayout
}

func (c *Context) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	vk := make([]core1_0.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vk[i] = core1_0.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  descriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      shaderStages(b.Stages),
		}
	}
	handle, _, err := c.device.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: vk,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor set layout")
	}
	return &descriptorSetLayout{handle: handle}, nil
}

func (l *descriptorSetLayout) Destroy() { l.handle.Destroy(nil) }

type descriptorPool struct {
	ctx    *Context
	handle core1_0.DescriptorPool
}

func (c *Context) CreateDescriptorPool(info gpu.DescriptorPoolInfo) (gpu.DescriptorPool, error) {
	sizes := make([]core1_0.DescriptorPoolSize, len(info.Sizes))
	for i, s := range info.Sizes {
		sizes[i] = core1_0.DescriptorPoolSize{
			Type:            descriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	handle, _, err := c.device.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   info.MaxSets,
		PoolSizes: sizes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor pool")
	}
	return &descriptorPool{ctx: c, handle: handle}, nil
}

func (p *descriptorPool) Allocate(layout gpu.DescriptorSetLayout, count int) ([]gpu.DescriptorSet, error) {
	layouts := make([]core1_0.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = layout.(*descriptorSetLayout).handle
	}
	handles, _, err := p.ctx.device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p.handle,
		SetLayouts:     layouts,
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate descriptor sets")
	}
	sets := make([]gpu.DescriptorSet, len(handles))
	for i, h := range handles {
		sets[i] = &descriptorSet{ctx: p.ctx, handle: h}
	}
	return sets, nil
}

func (p *descriptorPool) Destroy() { p.handle.Destroy(nil) }

type descriptorSet struct {
	ctx    *Context
	handle core1_0.DescriptorSet
}

func (s *descriptorSet) WriteBuffer(binding int, typ gpu.DescriptorType, b gpu.Buffer, size int) error {
	err := s.ctx.device.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          s.handle,
			DstBinding:      binding,
			DstArrayElement: 0,

			DescriptorType: descriptorType(typ),

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: b.(*buffer).handle,
					Offset: 0,
					Range:  size,
				},
			},
		},
	}, nil)
	return errors.Wrap(err, "write buffer descriptor")
}

func (s *descriptorSet) WriteImage(binding int, view gpu.ImageView, smp gpu.Sampler) error {
	err := s.ctx.device.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          s.handle,
			DstBinding:      binding,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   view.(*imageView).handle,
					Sampler:     smp.(*sampler).handle,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			},
		},
	}, nil)
	return errors.Wrap(err, "write image descriptor")
}
