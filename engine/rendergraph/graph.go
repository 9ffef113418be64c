package rendergraph

import (
	"fmt"

	"github.com/Carmen-Shannon/flux-go/engine/device"
	"github.com/Carmen-Shannon/flux-go/engine/resource"
	vk "github.com/goki/vulkan"
)

// Device is the slice of the logical device the graph consumes: creation and
// destruction of render passes, framebuffers and image views, and render-pass
// scoping on a command buffer.
type Device interface {
	CreateRenderPass(info vk.RenderPassCreateInfo) (vk.RenderPass, error)
	DestroyRenderPass(rp vk.RenderPass)
	CreateFramebuffer(info vk.FramebufferCreateInfo) (vk.Framebuffer, error)
	DestroyFramebuffer(fb vk.Framebuffer)
	CreateImageView(info vk.ImageViewCreateInfo) (vk.ImageView, error)
	DestroyImageView(view vk.ImageView)
	BeginRenderPass(cmd vk.CommandBuffer, info vk.RenderPassBeginInfo)
	EndRenderPass(cmd vk.CommandBuffer)
}

var _ Device = device.Device(nil)

// Edge declares that a pass writes a node. Every edge must reference a
// declared pass and node.
type Edge struct {
	// Pass is the writing pass's name.
	Pass string
	// Node is the written node's name.
	Node string
}

// attachmentImage is the slice of an allocated image the graph needs to own
// an attachment.
type attachmentImage interface {
	Handle() vk.Image
	Destroy()
}

// RenderGraph resolves named passes and image attachments into render-pass
// and framebuffer objects. The graph never detects surface invalidation
// itself; when the frame engine reports a swapchain rebuild the caller
// destroys the graph and builds it again wholesale against the new surface.
type RenderGraph struct {
	device          Device
	allocate        func(spec resource.ImageSpec) (attachmentImage, error)
	passes          map[string]*Pass
	nodes           map[string]*boundNode
	backbufferCount int
}

// New creates an empty graph over the given device and allocator. Build must
// be called before any pass can be executed.
//
// Parameters:
//   - dev: the device slice used to create graph objects.
//   - allocator: the allocator owned-node images are created through. May be
//     nil when every node is backbuffer-bound.
//
// Returns:
//   - *RenderGraph: the empty graph.
func New(dev Device, allocator *device.Allocator) *RenderGraph {
	g := &RenderGraph{device: dev}
	g.allocate = func(spec resource.ImageSpec) (attachmentImage, error) {
		if allocator == nil {
			return nil, fmt.Errorf("graph has no allocator for owned node images")
		}
		return resource.AllocateImage(allocator, spec)
	}
	return g
}

// Build validates the declaration and constructs every render pass, owned
// image and single-image framebuffer. Passes that draw to the backbuffer get
// their framebuffers when InsertBackbufferImages supplies the presentation
// images. Building again destroys the previous graph first.
//
// Parameters:
//   - passes: the pass declarations.
//   - nodes: the node declarations, including one named BackbufferNode when
//     any pass draws to the presentation surface.
//   - edges: the pass-writes-node declarations, validated against the pass
//     and node sets.
//
// Returns:
//   - error: a GraphValidationError on structural problems, any device error
//     during construction, otherwise nil.
func (g *RenderGraph) Build(passes []PassDecl, nodes []ImageNode, edges []Edge) error {
	if err := validate(passes, nodes, edges); err != nil {
		return err
	}
	g.Destroy()
	g.passes = make(map[string]*Pass, len(passes))
	g.nodes = make(map[string]*boundNode, len(nodes))
	readers := readNodes(passes)

	for _, decl := range nodes {
		bound := &boundNode{decl: decl}
		if decl.Name != BackbufferNode {
			if err := g.bindOwnedNode(bound); err != nil {
				g.Destroy()
				return err
			}
		}
		g.nodes[decl.Name] = bound
	}
	for _, decl := range passes {
		pass, err := g.buildPass(decl, readers)
		if err != nil {
			g.Destroy()
			return err
		}
		g.passes[decl.Name] = pass
	}
	return nil
}

// readNodes collects the nodes some pass consumes as an input attachment.
// The pass writing such a node must store its contents.
func readNodes(passes []PassDecl) map[string]bool {
	readers := make(map[string]bool)
	for _, p := range passes {
		for _, att := range p.Attachments {
			if att.Role == RoleInput {
				readers[att.Node] = true
			}
		}
	}
	return readers
}

func validate(passes []PassDecl, nodes []ImageNode, edges []Edge) error {
	passNames := make(map[string]bool, len(passes))
	for _, p := range passes {
		if passNames[p.Name] {
			return &GraphValidationError{Reason: fmt.Sprintf("duplicate pass %q", p.Name)}
		}
		passNames[p.Name] = true
		if len(p.Attachments) == 0 {
			return &GraphValidationError{Reason: fmt.Sprintf("pass %q has no attachments", p.Name)}
		}
	}
	nodeNames := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if nodeNames[n.Name] {
			return &GraphValidationError{Reason: fmt.Sprintf("duplicate node %q", n.Name)}
		}
		nodeNames[n.Name] = true
	}
	for _, p := range passes {
		depth := 0
		for _, att := range p.Attachments {
			if !nodeNames[att.Node] {
				return &GraphValidationError{Reason: fmt.Sprintf("pass %q references undeclared node %q", p.Name, att.Node)}
			}
			if att.Role == RoleDepth {
				depth++
			}
		}
		if depth > 1 {
			return &GraphValidationError{Reason: fmt.Sprintf("pass %q declares %d depth attachments", p.Name, depth)}
		}
	}
	for _, e := range edges {
		if !passNames[e.Pass] {
			return &GraphValidationError{Reason: fmt.Sprintf("edge references undeclared pass %q", e.Pass)}
		}
		if !nodeNames[e.Node] {
			return &GraphValidationError{Reason: fmt.Sprintf("edge references undeclared node %q", e.Node)}
		}
	}
	return nil
}

// bindOwnedNode allocates the backing image and view for a node the graph
// owns.
func (g *RenderGraph) bindOwnedNode(bound *boundNode) error {
	decl := bound.decl
	usage := vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	if isDepthFormat(decl.Format) {
		usage = vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	if decl.ForceShaderRead {
		usage |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	img, err := g.allocate(resource.ImageSpec{
		Width:      decl.Width,
		Height:     decl.Height,
		Format:     decl.Format,
		MipLevels:  1,
		LayerCount: 1,
		Samples:    decl.Samples,
		Usage:      usage,
	})
	if err != nil {
		return fmt.Errorf("failed to allocate image for node %q: %w", decl.Name, err)
	}
	view, err := g.device.CreateImageView(vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle(),
		ViewType: vk.ImageViewType2d,
		Format:   decl.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: imageAspect(decl.Format),
			LevelCount: 1,
			LayerCount: 1,
		},
	})
	if err != nil {
		img.Destroy()
		return fmt.Errorf("failed to create view for node %q: %w", decl.Name, err)
	}
	bound.owned = img
	bound.view = view
	return nil
}

// buildPass creates the render-pass object for one declaration and, for
// passes not touching the backbuffer, its single framebuffer.
func (g *RenderGraph) buildPass(decl PassDecl, readers map[string]bool) (*Pass, error) {
	pass := &Pass{name: decl.Name, decl: decl}
	var (
		descriptions []vk.AttachmentDescription
		colorRefs    []vk.AttachmentReference
		inputRefs    []vk.AttachmentReference
		depthRef     *vk.AttachmentReference
		hasDepth     bool
	)
	for i, att := range decl.Attachments {
		node := g.nodes[att.Node]
		backbuffer := att.Node == BackbufferNode
		if backbuffer {
			pass.usesBackbuffer = true
		}
		desc := describeAttachment(node.decl, backbuffer, readers[att.Node])
		pass.clearValues = append(pass.clearValues, node.decl.ClearValue)
		ref := vk.AttachmentReference{Attachment: uint32(i)}
		switch att.Role {
		case RoleColor:
			ref.Layout = vk.ImageLayoutColorAttachmentOptimal
			colorRefs = append(colorRefs, ref)
			pass.colorAttachCount++
		case RoleDepth:
			ref.Layout = vk.ImageLayoutDepthStencilAttachmentOptimal
			depthRef = &ref
			hasDepth = true
		case RoleInput:
			// The consuming pass reads what the writer stored; clearing
			// here would discard it.
			desc.LoadOp = vk.AttachmentLoadOpLoad
			desc.InitialLayout = vk.ImageLayoutShaderReadOnlyOptimal
			desc.FinalLayout = vk.ImageLayoutShaderReadOnlyOptimal
			ref.Layout = vk.ImageLayoutShaderReadOnlyOptimal
			inputRefs = append(inputRefs, ref)
		}
		descriptions = append(descriptions, desc)
	}
	first := g.nodes[decl.Attachments[0].Node].decl
	pass.extent = vk.Extent2D{Width: first.Width, Height: first.Height}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(colorRefs)),
		PColorAttachments:       colorRefs,
		InputAttachmentCount:    uint32(len(inputRefs)),
		PInputAttachments:       inputRefs,
		PDepthStencilAttachment: depthRef,
	}
	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	access := vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	if hasDepth {
		stages |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		access |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  stages,
		SrcAccessMask: 0,
		DstStageMask:  stages,
		DstAccessMask: access,
	}
	renderPass, err := g.device.CreateRenderPass(vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(descriptions)),
		PAttachments:    descriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create render pass %q: %w", decl.Name, err)
	}
	pass.renderPass = renderPass

	if !pass.usesBackbuffer {
		fb, err := g.createFramebuffer(pass, -1)
		if err != nil {
			g.device.DestroyRenderPass(renderPass)
			return nil, err
		}
		pass.framebuffers = []vk.Framebuffer{fb}
	}
	return pass, nil
}

// InsertBackbufferImages supplies the externally owned presentation images
// and builds one framebuffer per image for every pass that draws to the
// backbuffer. The injected images are stored under their indexed names and
// are never destroyed by the graph.
//
// Parameters:
//   - images: the swapchain images, one per presentation slot.
//
// Returns:
//   - error: an UnknownNodeError when no backbuffer node was declared, any
//     device error during construction, otherwise nil.
func (g *RenderGraph) InsertBackbufferImages(images []vk.Image) error {
	backbuffer, ok := g.nodes[BackbufferNode]
	if !ok {
		return &UnknownNodeError{Name: BackbufferNode}
	}
	g.removeBackbufferBindings()
	for i, img := range images {
		view, err := g.device.CreateImageView(vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    img,
			ViewType: vk.ImageViewType2d,
			Format:   backbuffer.decl.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		})
		if err != nil {
			g.removeBackbufferBindings()
			return fmt.Errorf("failed to create backbuffer view %d: %w", i, err)
		}
		decl := backbuffer.decl
		decl.Name = BackbufferName(i)
		g.nodes[decl.Name] = &boundNode{decl: decl, external: img, view: view}
	}
	g.backbufferCount = len(images)

	for _, pass := range g.passes {
		if !pass.usesBackbuffer {
			continue
		}
		pass.framebuffers = make([]vk.Framebuffer, 0, len(images))
		for i := range images {
			fb, err := g.createFramebuffer(pass, i)
			if err != nil {
				g.removeBackbufferBindings()
				return err
			}
			pass.framebuffers = append(pass.framebuffers, fb)
		}
	}
	return nil
}

// createFramebuffer builds the framebuffer for one pass and one backbuffer
// index. A negative index means the pass touches only owned nodes.
func (g *RenderGraph) createFramebuffer(pass *Pass, imageIndex int) (vk.Framebuffer, error) {
	views := make([]vk.ImageView, 0, len(pass.decl.Attachments))
	for _, att := range pass.decl.Attachments {
		name := att.Node
		if name == BackbufferNode {
			name = BackbufferName(imageIndex)
		}
		node, ok := g.nodes[name]
		if !ok {
			return vk.NullFramebuffer, &UnknownNodeError{Name: name}
		}
		views = append(views, node.view)
	}
	fb, err := g.device.CreateFramebuffer(vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass.renderPass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           pass.extent.Width,
		Height:          pass.extent.Height,
		Layers:          1,
	})
	if err != nil {
		return vk.NullFramebuffer, fmt.Errorf("failed to create framebuffer for pass %q: %w", pass.name, err)
	}
	return fb, nil
}

// ExecutePass begins the render pass bound to the framebuffer for the given
// image index, invokes the body with the pass's extent, then ends the render
// pass. Passes that do not draw to the backbuffer ignore the index and use
// their single framebuffer.
//
// Parameters:
//   - cmd: the command buffer being recorded.
//   - passName: the declared pass to execute.
//   - imageIndex: the acquired presentation image index.
//   - body: records the pass's draw commands, given the viewport extent.
//
// Returns:
//   - error: an UnknownPassError when the pass was never declared, an error
//     when the index is out of range of the supplied backbuffer images, the
//     body's error, otherwise nil.
func (g *RenderGraph) ExecutePass(cmd vk.CommandBuffer, passName string, imageIndex int, body func(extent vk.Extent2D) error) error {
	pass, ok := g.passes[passName]
	if !ok {
		return &UnknownPassError{Name: passName}
	}
	if !pass.usesBackbuffer {
		imageIndex = 0
	}
	fb, ok := pass.Framebuffer(imageIndex)
	if !ok {
		return fmt.Errorf("pass %q has no framebuffer for image index %d (have %d)", passName, imageIndex, len(pass.framebuffers))
	}
	g.device.BeginRenderPass(cmd, vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass.renderPass,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Extent: pass.extent,
		},
		ClearValueCount: uint32(len(pass.clearValues)),
		PClearValues:    pass.clearValues,
	})
	err := body(pass.extent)
	g.device.EndRenderPass(cmd)
	return err
}

// Pass looks up a built pass by name.
//
// Parameters:
//   - name: the declared pass name.
//
// Returns:
//   - *Pass: the pass.
//   - error: an UnknownPassError when absent, otherwise nil.
func (g *RenderGraph) Pass(name string) (*Pass, error) {
	pass, ok := g.passes[name]
	if !ok {
		return nil, &UnknownPassError{Name: name}
	}
	return pass, nil
}

// Node looks up a node declaration by name, including the indexed backbuffer
// nodes once images have been inserted.
//
// Parameters:
//   - name: the declared node name.
//
// Returns:
//   - ImageNode: the declaration.
//   - error: an UnknownNodeError when absent, otherwise nil.
func (g *RenderGraph) Node(name string) (ImageNode, error) {
	node, ok := g.nodes[name]
	if !ok {
		return ImageNode{}, &UnknownNodeError{Name: name}
	}
	return node.decl, nil
}

// BackbufferCount returns how many presentation images have been inserted.
func (g *RenderGraph) BackbufferCount() int {
	return g.backbufferCount
}

// removeBackbufferBindings drops the indexed backbuffer nodes, their views
// and the framebuffers built on them. The injected images themselves are
// externally owned and untouched.
func (g *RenderGraph) removeBackbufferBindings() {
	for _, pass := range g.passes {
		if !pass.usesBackbuffer {
			continue
		}
		for _, fb := range pass.framebuffers {
			g.device.DestroyFramebuffer(fb)
		}
		pass.framebuffers = nil
	}
	for i := 0; i < g.backbufferCount; i++ {
		name := BackbufferName(i)
		if node, ok := g.nodes[name]; ok {
			g.device.DestroyImageView(node.view)
			delete(g.nodes, name)
		}
	}
	g.backbufferCount = 0
}

// Destroy releases every framebuffer, render pass, view and owned image. The
// caller must ensure the device is idle first. It is safe to call more than
// once and on a never-built graph.
func (g *RenderGraph) Destroy() {
	if g.passes == nil && g.nodes == nil {
		return
	}
	g.removeBackbufferBindings()
	for _, pass := range g.passes {
		for _, fb := range pass.framebuffers {
			g.device.DestroyFramebuffer(fb)
		}
		g.device.DestroyRenderPass(pass.renderPass)
	}
	for _, node := range g.nodes {
		if node.owned != nil {
			g.device.DestroyImageView(node.view)
			node.owned.Destroy()
		}
	}
	g.passes = nil
	g.nodes = nil
}
