package gen

// Registry assigns layer indices to ids in first-seen order.
type Registry struct {
	ids   []string
	index map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: map[string]int{}}
}

// Add returns the layer of id, registering it if needed.
func (r *Registry) Add(id string) int {
	if i, ok := r.index[id]; ok {
		return i
	}
	i := len(r.ids)
	r.ids = append(r.ids, id)
	r.index[id] = i
	return i
}

func (r *Registry) Layer(id string) (int, bool) {
	i, ok := r.index[id]
	return i, ok
}

func (r *Registry) Len() int { return len(r.ids) }

// IDs returns the registered ids ordered by layer.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// IndexTextures builds the texture registry from every biome painter and
// then the painting post-pass, and allocates the weight map.
func (c *Context) IndexTextures() {
	c.Textures = NewRegistry()
	for _, b := range c.Config.Biomes {
		for _, s := range b.Painting {
			for _, id := range s.Textures() {
				c.Textures.Add(id)
			}
		}
	}
	for _, s := range c.Config.PaintingPost {
		for _, id := range s.Textures() {
			c.Textures.Add(id)
		}
	}
	layers := c.Textures.Len()
	if c.Dims.AlphaLayers > layers {
		layers = c.Dims.AlphaLayers
	}
	c.Weights = NewWeightMap(c.Dims.AlphaResolution, layers)
}

// IndexDetails builds the detail registry the same way and allocates one
// density grid per species.
func (c *Context) IndexDetails() {
	c.Details = NewRegistry()
	for _, b := range c.Config.Biomes {
		for _, s := range b.Details {
			for _, id := range s.Details() {
				c.Details.Add(id)
			}
		}
	}
	for _, s := range c.Config.DetailPost {
		for _, id := range s.Details() {
			c.Details.Add(id)
		}
	}
	c.Densities = NewDensityMap(c.Dims.DetailResolution, c.Details.Len(), c.Dims.MaxDetailsPerPatch)
}

// TextureLayer resolves a texture id, failing with ErrConfig when the id was
// never indexed.
func (c *Context) TextureLayer(id string) (int, error) {
	if i, ok := c.Textures.Layer(id); ok {
		return i, nil
	}
	return 0, ConfigErrorf("texture %q is not registered", id)
}

func (c *Context) DetailLayer(id string) (int, error) {
	if i, ok := c.Details.Layer(id); ok {
		return i, nil
	}
	return 0, ConfigErrorf("detail %q is not registered", id)
}
