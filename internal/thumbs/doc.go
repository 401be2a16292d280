// Package thumbs builds and caches square photo thumbnails. JPEG sources are
// re-decoded per requested size; expensive sources (raw, HEIF, png) are
// decoded once at base resolution and rescaled on read.
package thumbs
