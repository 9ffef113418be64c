package pipeline

import (
	"github.com/Carmen-Shannon/flux-go/engine/shader"
	vk "github.com/goki/vulkan"
)

// BuilderOption configures a pipeline before it is compiled.
type BuilderOption func(*graphicsPipeline)

// WithShaders sets the vertex and fragment stage modules. Required.
//
// Parameters:
//   - set: the loaded stage modules.
//
// Returns:
//   - BuilderOption: the option to apply.
func WithShaders(set shader.Set) BuilderOption {
	return func(p *graphicsPipeline) {
		p.vertexModule = set.Vertex
		p.fragmentModule = set.Fragment
	}
}

// WithRenderPass sets the render pass the pipeline is compiled against.
// Required.
//
// Parameters:
//   - renderPass: the target render pass object.
//
// Returns:
//   - BuilderOption: the option to apply.
func WithRenderPass(renderPass vk.RenderPass) BuilderOption {
	return func(p *graphicsPipeline) {
		p.renderPass = renderPass
	}
}

// WithExtent sets the fixed viewport and scissor extent.
//
// Parameters:
//   - extent: the viewport dimensions in pixels.
//
// Returns:
//   - BuilderOption: the option to apply.
func WithExtent(extent vk.Extent2D) BuilderOption {
	return func(p *graphicsPipeline) {
		p.extent = extent
	}
}

// WithVertexInput sets the vertex buffer bindings and attribute layout.
//
// Parameters:
//   - bindings: the per-buffer stride and input-rate descriptions.
//   - attributes: the per-attribute location, format and offset descriptions.
//
// Returns:
//   - BuilderOption: the option to apply.
func WithVertexInput(bindings []vk.VertexInputBindingDescription, attributes []vk.VertexInputAttributeDescription) BuilderOption {
	return func(p *graphicsPipeline) {
		p.vertexBindings = bindings
		p.vertexAttributes = attributes
	}
}

// WithTopology overrides the triangle-list primitive topology.
//
// Parameters:
//   - topology: the primitive topology to assemble with.
//
// Returns:
//   - BuilderOption: the option to apply.
func WithTopology(topology vk.PrimitiveTopology) BuilderOption {
	return func(p *graphicsPipeline) {
		p.topology = topology
	}
}

// WithCullMode overrides back-face culling.
//
// Parameters:
//   - mode: the cull mode to rasterize with.
//
// Returns:
//   - BuilderOption: the option to apply.
func WithCullMode(mode vk.CullModeFlagBits) BuilderOption {
	return func(p *graphicsPipeline) {
		p.cullMode = mode
	}
}

// WithDepthTest enables depth testing and writing.
//
// Returns:
//   - BuilderOption: the option to apply.
func WithDepthTest() BuilderOption {
	return func(p *graphicsPipeline) {
		p.depthTest = true
	}
}

// WithColorAttachments sets how many color attachments the target pass has,
// so each gets a blend state. Defaults to one.
//
// Parameters:
//   - count: the color attachment count of the render pass.
//
// Returns:
//   - BuilderOption: the option to apply.
func WithColorAttachments(count int) BuilderOption {
	return func(p *graphicsPipeline) {
		p.colorAttachmentCount = count
	}
}

// WithPushConstants declares the pipeline's push constant ranges.
//
// Parameters:
//   - ranges: the stage, offset and size of each range.
//
// Returns:
//   - BuilderOption: the option to apply.
func WithPushConstants(ranges ...vk.PushConstantRange) BuilderOption {
	return func(p *graphicsPipeline) {
		p.pushConstantRanges = ranges
	}
}

// WithDescriptorSetLayouts declares the pipeline's descriptor set layouts.
//
// Parameters:
//   - layouts: the set layouts in binding order.
//
// Returns:
//   - BuilderOption: the option to apply.
func WithDescriptorSetLayouts(layouts ...vk.DescriptorSetLayout) BuilderOption {
	return func(p *graphicsPipeline) {
		p.descriptorSetLayouts = layouts
	}
}
