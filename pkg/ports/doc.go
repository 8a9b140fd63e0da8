/*
Package ports defines the driven ports (interfaces) consumed by the lockstep core.

These interfaces decouple the scheduler and the dialog manager from the concrete
store layer, the OS-level input-policy gateway, and any cross-process lock service.

# Key Interfaces

  - DialogStore: Receives dialog open/close notifications and answers modal queries.
  - PolicyGateway: Registers and removes pointer-event routing policies.
  - DistributedLocker: Provides distributed locking for locks shared across processes.
*/
package ports
