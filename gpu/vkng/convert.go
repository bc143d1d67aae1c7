package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

var formats = map[gpu.Format]core1_0.Format{
	gpu.FormatRGBA8SRGB:         core1_0.FormatR8G8B8A8SRGB,
	gpu.FormatBGRA8SRGB:         core1_0.FormatB8G8R8A8SRGB,
	gpu.FormatRGBA8Unorm:        core1_0.FormatR8G8B8A8UnsignedNormalized,
	gpu.FormatBGRA8Unorm:        core1_0.FormatB8G8R8A8UnsignedNormalized,
	gpu.FormatD32Float:          core1_0.FormatD32SignedFloat,
	gpu.FormatD32FloatS8:        core1_0.FormatD32SignedFloatS8UnsignedInt,
	gpu.FormatD24S8:             core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
	gpu.FormatR32G32Float:       core1_0.FormatR32G32SignedFloat,
	gpu.FormatR32G32B32Float:    core1_0.FormatR32G32B32SignedFloat,
	gpu.FormatR32G32B32A32Float: core1_0.FormatR32G32B32A32SignedFloat,
	gpu.FormatR16G16B16A16Uint:  core1_0.FormatR16G16B16A16UnsignedInt,
}

func toFormat(f gpu.Format) core1_0.Format {
	if vk, ok := formats[f]; ok {
		return vk
	}
	return core1_0.FormatUndefined
}

func fromFormat(vk core1_0.Format) gpu.Format {
	for f, candidate := range formats {
		if candidate == vk {
			return f
		}
	}
	return gpu.FormatUndefined
}

var layouts = map[gpu.ImageLayout]core1_0.ImageLayout{
	gpu.LayoutUndefined:       core1_0.ImageLayoutUndefined,
	gpu.LayoutTransferDst:     core1_0.ImageLayoutTransferDstOptimal,
	gpu.LayoutShaderReadOnly:  core1_0.ImageLayoutShaderReadOnlyOptimal,
	gpu.LayoutColorAttachment: core1_0.ImageLayoutColorAttachmentOptimal,
	gpu.LayoutDepthAttachment: core1_0.ImageLayoutDepthStencilAttachmentOptimal,
	gpu.LayoutPresentSrc:      khr_swapchain.ImageLayoutPresentSrc,
}

// transition is the access and stage masks of one supported layout change.
type transition struct {
	srcAccess core1_0.AccessFlags
	dstAccess core1_0.AccessFlags
	srcStage  core1_0.PipelineStageFlags
	dstStage  core1_0.PipelineStageFlags
}

type layoutPair struct {
	from, to gpu.ImageLayout
}

var transitions = map[layoutPair]transition{
	{gpu.LayoutUndefined, gpu.LayoutTransferDst}: {
		dstAccess: core1_0.AccessTransferWrite,
		srcStage:  core1_0.PipelineStageTopOfPipe,
		dstStage:  core1_0.PipelineStageTransfer,
	},
	{gpu.LayoutTransferDst, gpu.LayoutShaderReadOnly}: {
		srcAccess: core1_0.AccessTransferWrite,
		dstAccess: core1_0.AccessShaderRead,
		srcStage:  core1_0.PipelineStageTransfer,
		dstStage:  core1_0.PipelineStageFragmentShader,
	},
	{gpu.LayoutUndefined, gpu.LayoutDepthAttachment}: {
		dstAccess: core1_0.AccessDepthStencilAttachmentRead | core1_0.AccessDepthStencilAttachmentWrite,
		srcStage:  core1_0.PipelineStageTopOfPipe,
		dstStage:  core1_0.PipelineStageEarlyFragmentTests,
	},
}

func barrierMasks(from, to gpu.ImageLayout) (transition, error) {
	t, ok := transitions[layoutPair{from, to}]
	if !ok {
		return transition{}, errors.Newf("unsupported layout transition %s -> %s", from, to)
	}
	return t, nil
}

func aspectMask(aspect gpu.Aspect) core1_0.ImageAspectFlags {
	if aspect != gpu.AspectDepth {
		return core1_0.ImageAspectColor
	}
	return core1_0.ImageAspectDepth
}

func barrierAspect(aspect gpu.Aspect, format gpu.Format) core1_0.ImageAspectFlags {
	mask := aspectMask(aspect)
	if aspect == gpu.AspectDepth && format.HasStencil() {
		mask |= core1_0.ImageAspectStencil
	}
	return mask
}

func bufferUsage(u gpu.BufferUsage) core1_0.BufferUsageFlags {
	var flags core1_0.BufferUsageFlags
	if u&gpu.BufferUsageTransferSrc != 0 {
		flags |= core1_0.BufferUsageTransferSrc
	}
	if u&gpu.BufferUsageTransferDst != 0 {
		flags |= core1_0.BufferUsageTransferDst
	}
	if u&gpu.BufferUsageVertex != 0 {
		flags |= core1_0.BufferUsageVertexBuffer
	}
	if u&gpu.BufferUsageIndex != 0 {
		flags |= core1_0.BufferUsageIndexBuffer
	}
	if u&gpu.BufferUsageUniform != 0 {
		flags |= core1_0.BufferUsageUniformBuffer
	}
	if u&gpu.BufferUsageStorage != 0 {
		flags |= core1_0.BufferUsageStorageBuffer
	}
	return flags
}

func imageUsage(u gpu.ImageUsage) core1_0.ImageUsageFlags {
	var flags core1_0.ImageUsageFlags
	if u&gpu.ImageUsageTransferDst != 0 {
		flags |= core1_0.ImageUsageTransferDst
	}
	if u&gpu.ImageUsageSampled != 0 {
		flags |= core1_0.ImageUsageSampled
	}
	if u&gpu.ImageUsageColorAttachment != 0 {
		flags |= core1_0.ImageUsageColorAttachment
	}
	if u&gpu.ImageUsageDepthAttachment != 0 {
		flags |= core1_0.ImageUsageDepthStencilAttachment
	}
	return flags
}

func shaderStages(s gpu.ShaderStage) core1_0.ShaderStageFlags {
	var flags core1_0.ShaderStageFlags
	if s&gpu.StageVertex != 0 {
		flags |= core1_0.StageVertex
	}
	if s&gpu.StageFragment != 0 {
		flags |= core1_0.StageFragment
	}
	return flags
}

func pipelineStages(s gpu.PipelineStage) core1_0.PipelineStageFlags {
	var flags core1_0.PipelineStageFlags
	if s&gpu.PipelineStageTopOfPipe != 0 {
		flags |= core1_0.PipelineStageTopOfPipe
	}
	if s&gpu.PipelineStageTransfer != 0 {
		flags |= core1_0.PipelineStageTransfer
	}
	if s&gpu.PipelineStageFragmentShader != 0 {
		flags |= core1_0.PipelineStageFragmentShader
	}
	if s&gpu.PipelineStageColorAttachmentOutput != 0 {
		flags |= core1_0.PipelineStageColorAttachmentOutput
	}
	if s&gpu.PipelineStageEarlyFragmentTests != 0 {
		flags |= core1_0.PipelineStageEarlyFragmentTests
	}
	return flags
}

func descriptorType(t gpu.DescriptorType) core1_0.DescriptorType {
	switch t {
	case gpu.DescriptorStorageBuffer:
		return core1_0.DescriptorTypeStorageBuffer
	case gpu.DescriptorCombinedImageSampler:
		return core1_0.DescriptorTypeCombinedImageSampler
	}
	return core1_0.DescriptorTypeUniformBuffer
}

func topology(t gpu.Topology) core1_0.PrimitiveTopology {
	if t == gpu.TopologyLineList {
		return core1_0.PrimitiveTopologyLineList
	}
	return core1_0.PrimitiveTopologyTriangleList
}

func cullMode(c gpu.CullMode) core1_0.CullModeFlags {
	switch c {
	case gpu.CullBack:
		return core1_0.CullModeBack
	case gpu.CullFront:
		return core1_0.CullModeFront
	}
	return 0
}

func frontFace(f gpu.FrontFace) core1_0.FrontFace {
	if f == gpu.FrontFaceClockwise {
		return core1_0.FrontFaceClockwise
	}
	return core1_0.FrontFaceCounterClockwise
}

func compareOp(c gpu.CompareOp) core1_0.CompareOp {
	switch c {
	case gpu.CompareLessOrEqual:
		return core1_0.CompareOpLessOrEqual
	case gpu.CompareAlways:
		return core1_0.CompareOpAlways
	}
	return core1_0.CompareOpLess
}

func indexType(t gpu.IndexType) core1_0.IndexType {
	if t == gpu.IndexUint32 {
		return core1_0.IndexTypeUInt32
	}
	return core1_0.IndexTypeUInt16
}

func presentMode(m gpu.PresentMode) khr_surface.PresentMode {
	switch m {
	case gpu.PresentModeMailbox:
		return khr_surface.PresentModeMailbox
	case gpu.PresentModeImmediate:
		return khr_surface.PresentModeImmediate
	}
	return khr_surface.PresentModeFIFO
}
