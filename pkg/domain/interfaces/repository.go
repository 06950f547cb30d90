package interfaces

// Repository defines the interface for durable memory persistence
type Repository interface {
	Memory() MemoryRepository
	Consent() ConsentRepository

	Close() error
}
