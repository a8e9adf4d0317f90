// Package preprocess prepares a cycle's clouds before they reach the core:
// a height window relative to the platform and restriction of the obstacle
// cloud to points also present in the raw cloud.
//
// Both stages are independent of ray casting. The core packages never import
// preprocess; callers run it and pass the result to pipeline.
package preprocess
