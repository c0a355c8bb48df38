// Package imageio decodes uploaded images, gates them on the accepted raster
// formats, and encodes painted results.
//
// Formats are sniffed from content, never from file names. JPEG, PNG, BMP and
// TIFF are accepted; GIF and WebP are recognised only so they can be rejected
// with a precise message.
package imageio
