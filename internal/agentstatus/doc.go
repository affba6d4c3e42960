// Package agentstatus tracks the health records of the backend's named
// workers. The worker logic is external; only liveness is recorded here.
package agentstatus
