package main

//go:generate glslc ../../assets/shaders/mesh.vert -o ../../assets/shaders/mesh.vert.spv
//go:generate glslc ../../assets/shaders/skinned.vert -o ../../assets/shaders/skinned.vert.spv
//go:generate glslc ../../assets/shaders/mesh.frag -o ../../assets/shaders/mesh.frag.spv
//go:generate glslc ../../assets/shaders/line.vert -o ../../assets/shaders/line.vert.spv
//go:generate glslc ../../assets/shaders/line.frag -o ../../assets/shaders/line.frag.spv
