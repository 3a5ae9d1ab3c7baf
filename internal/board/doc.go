// Package board assembles a runnable system: kernel, chip, capsules,
// scheduler, and the processes named by the board definition.
package board
