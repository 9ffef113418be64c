package rendergraph

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/flux-go/engine/resource"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice counts object creation and destruction so tests can assert the
// graph's bookkeeping without a GPU.
type fakeDevice struct {
	renderPasses   int
	framebuffers   int
	views          int
	destroyedRP    int
	destroyedFB    int
	destroyedViews int
	begins         int
	ends           int
	lastBegin      vk.RenderPassBeginInfo
	createdRP      []vk.RenderPassCreateInfo
	failView       bool
}

var _ Device = &fakeDevice{}

func (d *fakeDevice) CreateRenderPass(info vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	d.renderPasses++
	d.createdRP = append(d.createdRP, info)
	return vk.NullRenderPass, nil
}

func (d *fakeDevice) DestroyRenderPass(rp vk.RenderPass) { d.destroyedRP++ }

func (d *fakeDevice) CreateFramebuffer(info vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	d.framebuffers++
	return vk.NullFramebuffer, nil
}

func (d *fakeDevice) DestroyFramebuffer(fb vk.Framebuffer) { d.destroyedFB++ }

func (d *fakeDevice) CreateImageView(info vk.ImageViewCreateInfo) (vk.ImageView, error) {
	if d.failView {
		return vk.NullImageView, errors.New("view creation failed")
	}
	d.views++
	return vk.NullImageView, nil
}

func (d *fakeDevice) DestroyImageView(view vk.ImageView) { d.destroyedViews++ }

func (d *fakeDevice) BeginRenderPass(cmd vk.CommandBuffer, info vk.RenderPassBeginInfo) {
	d.begins++
	d.lastBegin = info
}

func (d *fakeDevice) EndRenderPass(cmd vk.CommandBuffer) { d.ends++ }

type fakeImage struct {
	destroyed bool
}

func (f *fakeImage) Handle() vk.Image { return vk.NullImage }
func (f *fakeImage) Destroy()         { f.destroyed = true }

// newTestGraph wires a graph over the fake device with a fake allocator so
// owned nodes never touch real GPU memory.
func newTestGraph(dev *fakeDevice) (*RenderGraph, *[]*fakeImage) {
	g := New(dev, nil)
	images := &[]*fakeImage{}
	g.allocate = func(spec resource.ImageSpec) (attachmentImage, error) {
		img := &fakeImage{}
		*images = append(*images, img)
		return img, nil
	}
	return g, images
}

func sceneDecl() ([]PassDecl, []ImageNode, []Edge) {
	passes := []PassDecl{
		{
			Name: "geometry",
			Attachments: []Attachment{
				{Node: BackbufferNode, Role: RoleColor},
				{Node: "depth", Role: RoleDepth},
			},
		},
		{
			Name: "shadow",
			Attachments: []Attachment{
				{Node: "shadow_map", Role: RoleDepth},
			},
		},
	}
	nodes := []ImageNode{
		{Name: BackbufferNode, Width: 800, Height: 600, Format: vk.FormatB8g8r8a8Unorm},
		{Name: "depth", Width: 800, Height: 600, Format: vk.FormatD32Sfloat},
		{Name: "shadow_map", Width: 1024, Height: 1024, Format: vk.FormatD32Sfloat, ForceShaderRead: true},
	}
	edges := []Edge{
		{Pass: "geometry", Node: BackbufferNode},
		{Pass: "geometry", Node: "depth"},
		{Pass: "shadow", Node: "shadow_map"},
	}
	return passes, nodes, edges
}

func TestBuildAndInsertRoundTrip(t *testing.T) {
	dev := &fakeDevice{}
	g, owned := newTestGraph(dev)
	passes, nodes, edges := sceneDecl()

	require.NoError(t, g.Build(passes, nodes, edges))
	require.NoError(t, g.InsertBackbufferImages([]vk.Image{vk.NullImage, vk.NullImage, vk.NullImage}))

	assert.Equal(t, 2, dev.renderPasses)
	// One framebuffer for the offscreen pass, three for the backbuffer pass.
	assert.Equal(t, 4, dev.framebuffers)
	assert.Len(t, *owned, 2, "depth and shadow_map should be allocated")
	assert.Equal(t, 3, g.BackbufferCount())

	for _, name := range []string{"geometry", "shadow"} {
		pass, err := g.Pass(name)
		require.NoError(t, err)
		assert.Equal(t, name, pass.Name())
	}
	geometry, err := g.Pass("geometry")
	require.NoError(t, err)
	assert.Equal(t, 3, geometry.FramebufferCount())
	for i := 0; i < 3; i++ {
		_, ok := geometry.Framebuffer(i)
		assert.True(t, ok)
	}
	shadow, err := g.Pass("shadow")
	require.NoError(t, err)
	assert.Equal(t, 1, shadow.FramebufferCount())

	// Indexed backbuffer nodes are resolvable after insertion.
	for i := 0; i < 3; i++ {
		node, err := g.Node(BackbufferName(i))
		require.NoError(t, err)
		assert.Equal(t, BackbufferName(i), node.Name)
	}

	// A wholesale rebuild with the same declaration resolves the same names
	// and produces a framebuffer per new backbuffer image.
	require.NoError(t, g.Build(passes, nodes, edges))
	require.NoError(t, g.InsertBackbufferImages([]vk.Image{vk.NullImage, vk.NullImage}))
	for _, name := range []string{"geometry", "shadow"} {
		_, err := g.Pass(name)
		require.NoError(t, err)
	}
	geometry, err = g.Pass("geometry")
	require.NoError(t, err)
	assert.Equal(t, 2, geometry.FramebufferCount())
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p []PassDecl, n []ImageNode, e []Edge) ([]PassDecl, []ImageNode, []Edge)
	}{
		{
			name: "pass with no attachments",
			mutate: func(p []PassDecl, n []ImageNode, e []Edge) ([]PassDecl, []ImageNode, []Edge) {
				return append(p, PassDecl{Name: "empty"}), n, e
			},
		},
		{
			name: "attachment references undeclared node",
			mutate: func(p []PassDecl, n []ImageNode, e []Edge) ([]PassDecl, []ImageNode, []Edge) {
				p[0].Attachments[0].Node = "missing"
				return p, n, e
			},
		},
		{
			name: "edge references undeclared pass",
			mutate: func(p []PassDecl, n []ImageNode, e []Edge) ([]PassDecl, []ImageNode, []Edge) {
				return p, n, append(e, Edge{Pass: "missing", Node: "depth"})
			},
		},
		{
			name: "edge references undeclared node",
			mutate: func(p []PassDecl, n []ImageNode, e []Edge) ([]PassDecl, []ImageNode, []Edge) {
				return p, n, append(e, Edge{Pass: "geometry", Node: "missing"})
			},
		},
		{
			name: "duplicate pass name",
			mutate: func(p []PassDecl, n []ImageNode, e []Edge) ([]PassDecl, []ImageNode, []Edge) {
				return append(p, p[0]), n, e
			},
		},
		{
			name: "duplicate node name",
			mutate: func(p []PassDecl, n []ImageNode, e []Edge) ([]PassDecl, []ImageNode, []Edge) {
				return p, append(n, n[1]), e
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGraph(&fakeDevice{})
			passes, nodes, edges := sceneDecl()
			passes, nodes, edges = tt.mutate(passes, nodes, edges)
			err := g.Build(passes, nodes, edges)
			var validationErr *GraphValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestPassLookupMiss(t *testing.T) {
	g, _ := newTestGraph(&fakeDevice{})
	passes, nodes, edges := sceneDecl()
	require.NoError(t, g.Build(passes, nodes, edges))

	_, err := g.Pass("never_declared")
	var passErr *UnknownPassError
	require.ErrorAs(t, err, &passErr)
	assert.Equal(t, "never_declared", passErr.Name)

	_, err = g.Node("never_declared")
	var nodeErr *UnknownNodeError
	require.ErrorAs(t, err, &nodeErr)
}

func TestExecutePass(t *testing.T) {
	dev := &fakeDevice{}
	g, _ := newTestGraph(dev)
	passes, nodes, edges := sceneDecl()
	require.NoError(t, g.Build(passes, nodes, edges))
	require.NoError(t, g.InsertBackbufferImages([]vk.Image{vk.NullImage, vk.NullImage}))

	var gotExtent vk.Extent2D
	err := g.ExecutePass(nil, "geometry", 1, func(extent vk.Extent2D) error {
		gotExtent = extent
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, gotExtent)
	assert.Equal(t, 1, dev.begins)
	assert.Equal(t, 1, dev.ends)
	assert.Equal(t, uint32(2), dev.lastBegin.ClearValueCount)

	// The offscreen pass ignores the image index.
	require.NoError(t, g.ExecutePass(nil, "shadow", 1, func(extent vk.Extent2D) error {
		assert.Equal(t, vk.Extent2D{Width: 1024, Height: 1024}, extent)
		return nil
	}))

	// The render pass is always ended, even when the body fails.
	boom := errors.New("draw failed")
	err = g.ExecutePass(nil, "geometry", 0, func(extent vk.Extent2D) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, dev.begins, dev.ends)
}

func TestExecutePassErrors(t *testing.T) {
	g, _ := newTestGraph(&fakeDevice{})
	passes, nodes, edges := sceneDecl()
	require.NoError(t, g.Build(passes, nodes, edges))
	require.NoError(t, g.InsertBackbufferImages([]vk.Image{vk.NullImage, vk.NullImage}))

	var passErr *UnknownPassError
	err := g.ExecutePass(nil, "missing", 0, func(vk.Extent2D) error { return nil })
	require.ErrorAs(t, err, &passErr)

	err = g.ExecutePass(nil, "geometry", 5, func(vk.Extent2D) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image index 5")
}

func TestInsertWithoutBackbufferNode(t *testing.T) {
	g, _ := newTestGraph(&fakeDevice{})
	require.NoError(t, g.Build(
		[]PassDecl{{Name: "offscreen", Attachments: []Attachment{{Node: "target", Role: RoleColor}}}},
		[]ImageNode{{Name: "target", Width: 256, Height: 256, Format: vk.FormatR8g8b8a8Unorm}},
		[]Edge{{Pass: "offscreen", Node: "target"}},
	))
	var nodeErr *UnknownNodeError
	err := g.InsertBackbufferImages([]vk.Image{vk.NullImage})
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, BackbufferNode, nodeErr.Name)
}

func TestReinsertReplacesBindings(t *testing.T) {
	dev := &fakeDevice{}
	g, _ := newTestGraph(dev)
	passes, nodes, edges := sceneDecl()
	require.NoError(t, g.Build(passes, nodes, edges))
	require.NoError(t, g.InsertBackbufferImages([]vk.Image{vk.NullImage, vk.NullImage, vk.NullImage}))

	fbBefore := dev.destroyedFB
	viewsBefore := dev.destroyedViews
	require.NoError(t, g.InsertBackbufferImages([]vk.Image{vk.NullImage, vk.NullImage}))

	assert.Equal(t, fbBefore+3, dev.destroyedFB, "stale backbuffer framebuffers are destroyed")
	assert.Equal(t, viewsBefore+3, dev.destroyedViews, "stale backbuffer views are destroyed")
	assert.Equal(t, 2, g.BackbufferCount())
}

func TestDestroyReleasesOwnedImages(t *testing.T) {
	dev := &fakeDevice{}
	g, owned := newTestGraph(dev)
	passes, nodes, edges := sceneDecl()
	require.NoError(t, g.Build(passes, nodes, edges))
	require.NoError(t, g.InsertBackbufferImages([]vk.Image{vk.NullImage, vk.NullImage}))

	g.Destroy()
	for _, img := range *owned {
		assert.True(t, img.destroyed)
	}
	assert.Equal(t, 2, dev.destroyedRP)
	// Destroy again is a no-op.
	g.Destroy()
	assert.Equal(t, 2, dev.destroyedRP)
}

func TestAttachmentDescriptions(t *testing.T) {
	backbuffer := describeAttachment(ImageNode{Format: vk.FormatB8g8r8a8Unorm}, true, false)
	assert.Equal(t, vk.AttachmentStoreOpStore, backbuffer.StoreOp)
	assert.Equal(t, vk.ImageLayoutPresentSrc, backbuffer.FinalLayout)

	sampled := describeAttachment(ImageNode{Format: vk.FormatR8g8b8a8Unorm, ForceShaderRead: true}, false, false)
	assert.Equal(t, vk.AttachmentStoreOpStore, sampled.StoreOp)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, sampled.FinalLayout)

	transient := describeAttachment(ImageNode{Format: vk.FormatR8g8b8a8Unorm}, false, false)
	assert.Equal(t, vk.AttachmentStoreOpDontCare, transient.StoreOp)
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, transient.FinalLayout)

	depth := describeAttachment(ImageNode{Format: vk.FormatD32Sfloat, ForceStore: true}, false, false)
	assert.Equal(t, vk.AttachmentStoreOpStore, depth.StoreOp)
	assert.Equal(t, vk.ImageLayoutDepthStencilAttachmentOptimal, depth.FinalLayout)

	// An unflagged node consumed downstream stores without changing layout.
	read := describeAttachment(ImageNode{Format: vk.FormatR8g8b8a8Unorm}, false, true)
	assert.Equal(t, vk.AttachmentStoreOpStore, read.StoreOp)
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, read.FinalLayout)

	readDepth := describeAttachment(ImageNode{Format: vk.FormatD32Sfloat}, false, true)
	assert.Equal(t, vk.AttachmentStoreOpStore, readDepth.StoreOp)

	assert.Equal(t, vk.AttachmentLoadOpClear, backbuffer.LoadOp)
}

func TestDownstreamReadForcesStore(t *testing.T) {
	dev := &fakeDevice{}
	g, _ := newTestGraph(dev)

	passes := []PassDecl{
		{Name: "gbuffer", Attachments: []Attachment{
			{Node: "albedo", Role: RoleColor},
		}},
		{Name: "lighting", Attachments: []Attachment{
			{Node: BackbufferNode, Role: RoleColor},
			{Node: "albedo", Role: RoleInput},
		}},
	}
	nodes := []ImageNode{
		{Name: "albedo", Width: 800, Height: 600, Format: vk.FormatR8g8b8a8Unorm},
		{Name: BackbufferNode, Width: 800, Height: 600, Format: vk.FormatB8g8r8a8Unorm},
	}
	edges := []Edge{
		{Pass: "gbuffer", Node: "albedo"},
		{Pass: "lighting", Node: BackbufferNode},
	}
	require.NoError(t, g.Build(passes, nodes, edges))
	require.Len(t, dev.createdRP, 2)

	// The writer stores the unflagged node because lighting consumes it.
	writer := dev.createdRP[0].PAttachments[0]
	assert.Equal(t, vk.AttachmentStoreOpStore, writer.StoreOp)
	assert.Equal(t, vk.AttachmentLoadOpClear, writer.LoadOp)

	// The consumer loads the stored contents instead of clearing them.
	consumer := dev.createdRP[1].PAttachments[1]
	assert.Equal(t, vk.AttachmentLoadOpLoad, consumer.LoadOp)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, consumer.InitialLayout)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, consumer.FinalLayout)
}

func TestReadNodesFromInputAttachments(t *testing.T) {
	passes := []PassDecl{
		{Name: "gbuffer", Attachments: []Attachment{
			{Node: "albedo", Role: RoleColor},
			{Node: "depth", Role: RoleDepth},
		}},
		{Name: "lighting", Attachments: []Attachment{
			{Node: BackbufferNode, Role: RoleColor},
			{Node: "albedo", Role: RoleInput},
		}},
	}

	readers := readNodes(passes)
	assert.True(t, readers["albedo"])
	assert.False(t, readers["depth"])
	assert.False(t, readers[BackbufferNode])
}
