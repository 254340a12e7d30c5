// Package uninstaller removes an installed package using its receipt.
package uninstaller
