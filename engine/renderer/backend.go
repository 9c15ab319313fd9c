package renderer

import "github.com/spaghettifunk/mapstudio/engine/renderer/metadata"

// Texture is a GPU texture created by a Device.
type Texture interface {
	Description() metadata.TextureDescription
	Dispose()
}

// Buffer is a GPU vertex or index buffer created by a Device.
type Buffer interface {
	Description() metadata.BufferDescription
	Dispose()
}

// ResourceLayout describes the shape of a ResourceSet.
type ResourceLayout interface {
	Description() metadata.ResourceLayoutDescription
	Dispose()
}

// ResourceSet is a built descriptor set binding one texture per slot.
type ResourceSet interface {
	Layout() ResourceLayout
	Textures() []Texture
	Dispose()
}

// Device creates GPU objects. Every method must only be called from the
// render thread, which in practice means from inside an UploadTask.
type Device interface {
	Name() string
	CreateTexture(desc metadata.TextureDescription) (Texture, error)
	CreateBuffer(desc metadata.BufferDescription) (Buffer, error)
	CreateResourceLayout(desc metadata.ResourceLayoutDescription) (ResourceLayout, error)
	CreateResourceSet(layout ResourceLayout, textures []Texture) (ResourceSet, error)
	// BeginCommands returns a command list recording for the current frame.
	BeginCommands() (CommandList, error)
	// Submit executes the recorded commands and waits for them to finish.
	Submit(cl CommandList) error
	WaitIdle() error
	Shutdown() error
}

// CommandList records copy and bind commands for one frame.
type CommandList interface {
	CopyStagingToTexture(src *metadata.StagingBuffer, dst Texture) error
	CopyTexture(src, dst Texture) error
	UpdateBuffer(dst Buffer, offset uint64, data []byte) error
	SetResourceSet(slot uint32, set ResourceSet)
}

// UploadTask is a closure executed on the render thread with the device and
// the frame's command list.
type UploadTask func(d Device, cl CommandList) error

// DrawFunc runs after the frame's upload tasks, on the same command list.
type DrawFunc func(d Device, cl CommandList)
