/*
Package domain contains the core value types shared by the lockstep scheduler and
the dialog manager built on top of it.

It defines the declarations an action carries (locks, descriptors), the data exchanged
with the external input-policy gateway, and the lifecycle events emitted while actions
are queued, granted and settled. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Lock: A named shared-resource domain an action can read or write.
  - Descriptor: The static declaration attached to an action (reads, writes, transfers, modal).
  - PointerPolicy: An input-routing rule registered with the Policy Gateway.
  - DismissalPolicy: How an open dialog may be dismissed, carried in store notifications.
  - ActionEvent: A structural record of an invocation moving through the scheduler.
*/
package domain
