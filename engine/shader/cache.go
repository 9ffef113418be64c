package shader

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"

	flux "github.com/Carmen-Shannon/flux-go"
	"github.com/Carmen-Shannon/flux-go/engine/device"
	vk "github.com/goki/vulkan"
)

// spirvMagic is the first word of every valid SPIR-V binary.
const spirvMagic = 0x07230203

// PathSet names the compiled shader files of one graphics pipeline.
type PathSet struct {
	// Vertex is the path to the vertex stage SPIR-V binary.
	Vertex string
	// Fragment is the path to the fragment stage SPIR-V binary.
	Fragment string
}

// Set holds the loaded stage modules of one graphics pipeline.
type Set struct {
	// Vertex is the vertex stage module.
	Vertex vk.ShaderModule
	// Fragment is the fragment stage module.
	Fragment vk.ShaderModule
}

// Cache loads compiled SPIR-V shader files into modules, keyed by source
// path so each file is read and compiled at most once.
type Cache interface {
	// Load returns the module for the SPIR-V file at the given path, reading
	// it on first use and serving later calls from the cache.
	//
	// Parameters:
	//   - path: the shader file path, the cache key.
	//
	// Returns:
	//   - vk.ShaderModule: the loaded module.
	//   - error: an error if the file cannot be read or is not valid SPIR-V,
	//     otherwise nil.
	Load(path string) (vk.ShaderModule, error)

	// LoadSet loads both stages of a pipeline through the cache.
	//
	// Parameters:
	//   - paths: the vertex and fragment file paths.
	//
	// Returns:
	//   - Set: the loaded stage modules.
	//   - error: the first stage load error, otherwise nil.
	LoadSet(paths PathSet) (Set, error)

	// Destroy releases every cached module. The caller must ensure no
	// pipeline using them is still in flight.
	Destroy()
}

var _ Cache = &cache{}

type cache struct {
	mu      sync.Mutex
	device  device.Device
	modules map[string]vk.ShaderModule
	compile func(code []uint32) (vk.ShaderModule, error)
}

// NewCache creates an empty shader cache over the given device.
//
// Parameters:
//   - dev: the logical device modules are created on.
//
// Returns:
//   - Cache: the empty cache.
func NewCache(dev device.Device) Cache {
	c := &cache{
		device:  dev,
		modules: make(map[string]vk.ShaderModule),
	}
	c.compile = c.createModule
	return c
}

func (c *cache) Load(path string) (vk.ShaderModule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if module, ok := c.modules[path]; ok {
		return module, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return vk.NullShaderModule, fmt.Errorf("failed to read shader %q: %w", path, err)
	}
	code, err := decodeSpirv(raw)
	if err != nil {
		return vk.NullShaderModule, fmt.Errorf("shader %q: %w", path, err)
	}
	module, err := c.compile(code)
	if err != nil {
		return vk.NullShaderModule, fmt.Errorf("shader %q: %w", path, err)
	}
	c.modules[path] = module
	flux.Logger().Debug("loaded shader module", slog.String("path", path))
	return module, nil
}

func (c *cache) LoadSet(paths PathSet) (Set, error) {
	vertex, err := c.Load(paths.Vertex)
	if err != nil {
		return Set{}, err
	}
	fragment, err := c.Load(paths.Fragment)
	if err != nil {
		return Set{}, err
	}
	return Set{Vertex: vertex, Fragment: fragment}, nil
}

func (c *cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, module := range c.modules {
		vk.DestroyShaderModule(c.device.Handle(), module, nil)
	}
	c.modules = make(map[string]vk.ShaderModule)
}

func (c *cache) createModule(code []uint32) (vk.ShaderModule, error) {
	var module vk.ShaderModule
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)) * 4,
		PCode:    code,
	}
	if res := vk.CreateShaderModule(c.device.Handle(), &info, nil, &module); res != vk.Success {
		return vk.NullShaderModule, fmt.Errorf("failed to create shader module: %w", vk.Error(res))
	}
	return module, nil
}

// decodeSpirv validates the binary's alignment and magic number and repacks
// it into the word stream the API expects.
func decodeSpirv(raw []byte) ([]uint32, error) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("not a SPIR-V binary: %d bytes is not a whole number of words", len(raw))
	}
	code := make([]uint32, len(raw)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	if code[0] != spirvMagic {
		return nil, fmt.Errorf("not a SPIR-V binary: bad magic number %#x", code[0])
	}
	return code, nil
}
