// Package cache provides a generic LRU cache for GPU objects that are
// expensive to create and must be destroyed explicitly, such as compiled
// shader modules.
//
//	c := cache.New[string, hal.ShaderModule](32, func(_ string, m hal.ShaderModule) {
//	    device.DestroyShaderModule(m)
//	})
//	module, err := c.GetOrCreate("lighting", compile)
//
// The release callback runs for every value that leaves the cache, whether
// by eviction, Delete or Clear.
package cache
