package bind_group_provider

// BufferWrite describes a single GPU buffer write operation targeting a specific binding
// on a BindGroupProvider at a given byte offset. A write to a binding without a buffer
// creates a uniform buffer sized to Data.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}
