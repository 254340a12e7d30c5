// Package inspector renders descriptors and install state for people.
package inspector
