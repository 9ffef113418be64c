package pipeline

import (
	"fmt"

	"github.com/Carmen-Shannon/flux-go/engine/device"
	vk "github.com/goki/vulkan"
)

// shaderEntryPoint is the null-terminated entry function name of every stage.
const shaderEntryPoint = "main\x00"

// Pipeline is a compiled graphics pipeline and its layout. Pipelines are
// bound to the render pass they were created against: when the render graph
// is rebuilt after a surface change, every pipeline created from its passes
// is stale and must be recreated.
type Pipeline interface {
	// Handle returns the pipeline object.
	//
	// Returns:
	//   - vk.Pipeline: the pipeline object.
	Handle() vk.Pipeline

	// Layout returns the pipeline layout, needed to push constants and bind
	// descriptor sets.
	//
	// Returns:
	//   - vk.PipelineLayout: the layout object.
	Layout() vk.PipelineLayout

	// Bind records a graphics bind of this pipeline into a command buffer.
	//
	// Parameters:
	//   - cmd: the command buffer being recorded.
	Bind(cmd vk.CommandBuffer)

	// Destroy releases the pipeline and its layout. The caller must ensure
	// no frame using the pipeline is still in flight.
	Destroy()
}

var _ Pipeline = &graphicsPipeline{}

type graphicsPipeline struct {
	device               device.Device
	handle               vk.Pipeline
	layout               vk.PipelineLayout
	vertexModule         vk.ShaderModule
	fragmentModule       vk.ShaderModule
	renderPass           vk.RenderPass
	extent               vk.Extent2D
	vertexBindings       []vk.VertexInputBindingDescription
	vertexAttributes     []vk.VertexInputAttributeDescription
	topology             vk.PrimitiveTopology
	cullMode             vk.CullModeFlagBits
	depthTest            bool
	colorAttachmentCount int
	pushConstantRanges   []vk.PushConstantRange
	descriptorSetLayouts []vk.DescriptorSetLayout
}

// New builds a graphics pipeline against a render pass.
//
// Parameters:
//   - dev: the logical device.
//   - options: builder options describing shaders, fixed-function state and
//     layout. WithShaders and WithRenderPass are required.
//
// Returns:
//   - Pipeline: the compiled pipeline.
//   - error: an error if the configuration is incomplete or creation fails,
//     otherwise nil.
func New(dev device.Device, options ...BuilderOption) (Pipeline, error) {
	p := &graphicsPipeline{
		device:               dev,
		topology:             vk.PrimitiveTopologyTriangleList,
		cullMode:             vk.CullModeBackBit,
		colorAttachmentCount: 1,
	}
	for _, opt := range options {
		opt(p)
	}
	if p.vertexModule == vk.NullShaderModule || p.fragmentModule == vk.NullShaderModule {
		return nil, fmt.Errorf("pipeline requires both a vertex and a fragment shader")
	}
	if p.renderPass == vk.NullRenderPass {
		return nil, fmt.Errorf("pipeline requires a render pass")
	}
	if err := p.create(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *graphicsPipeline) create() error {
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(p.descriptorSetLayouts)),
		PSetLayouts:            p.descriptorSetLayouts,
		PushConstantRangeCount: uint32(len(p.pushConstantRanges)),
		PPushConstantRanges:    p.pushConstantRanges,
	}
	if res := vk.CreatePipelineLayout(p.device.Handle(), &layoutInfo, nil, &p.layout); res != vk.Success {
		return fmt.Errorf("failed to create pipeline layout: %w", vk.Error(res))
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: p.vertexModule,
			PName:  shaderEntryPoint,
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: p.fragmentModule,
			PName:  shaderEntryPoint,
		},
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(p.vertexBindings)),
		PVertexBindingDescriptions:      p.vertexBindings,
		VertexAttributeDescriptionCount: uint32(len(p.vertexAttributes)),
		PVertexAttributeDescriptions:    p.vertexAttributes,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: p.topology,
	}
	viewport := vk.Viewport{
		Width:    float32(p.extent.Width),
		Height:   float32(p.extent.Height),
		MaxDepth: 1,
	}
	scissor := vk.Rect2D{Extent: p.extent}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{scissor},
	}
	rasterization := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(p.cullMode),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp:   vk.CompareOpLess,
		DepthTestEnable:  vk.False,
		DepthWriteEnable: vk.False,
	}
	if p.depthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
	}
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, p.colorAttachmentCount)
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			ColorWriteMask: vk.ColorComponentFlags(
				vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		}
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterization,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		Layout:              p.layout,
		RenderPass:          p.renderPass,
		Subpass:             0,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(p.device.Handle(), vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{info}, nil, pipelines); res != vk.Success {
		vk.DestroyPipelineLayout(p.device.Handle(), p.layout, nil)
		return fmt.Errorf("failed to create graphics pipeline: %w", vk.Error(res))
	}
	p.handle = pipelines[0]
	return nil
}

func (p *graphicsPipeline) Handle() vk.Pipeline {
	return p.handle
}

func (p *graphicsPipeline) Layout() vk.PipelineLayout {
	return p.layout
}

func (p *graphicsPipeline) Bind(cmd vk.CommandBuffer) {
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, p.handle)
}

func (p *graphicsPipeline) Destroy() {
	if p.handle != vk.NullPipeline {
		vk.DestroyPipeline(p.device.Handle(), p.handle, nil)
		p.handle = vk.NullPipeline
	}
	if p.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(p.device.Handle(), p.layout, nil)
		p.layout = vk.NullPipelineLayout
	}
}
