package backend

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

const blitShader = `
struct VertexOutput {
	@builtin(position) position: vec4<f32>,
	@location(0) uv: vec2<f32>,
};

@group(0) @binding(0) var src_texture: texture_2d<f32>;
@group(0) @binding(1) var src_sampler: sampler;

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> VertexOutput {
	let uv = vec2<f32>(f32((index << 1u) & 2u), f32(index & 2u));
	var out: VertexOutput;
	out.position = vec4<f32>(uv.x * 2.0 - 1.0, 1.0 - uv.y * 2.0, 0.0, 1.0);
	out.uv = uv;
	return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
	return textureSample(src_texture, src_sampler, in.uv);
}
`

// wgpuBlitter draws a fullscreen triangle sampling the source level with a linear sampler. WebGPU has no
// scaling copy, so BlitTexture and mip generation both go through here.
type wgpuBlitter struct {
	b          *wgpuBackendImpl
	module     *wgpu.ShaderModule
	layout     *wgpu.BindGroupLayout
	pipeLayout *wgpu.PipelineLayout
	sampler    *wgpu.Sampler
	// pipelines is keyed by destination format.
	pipelines map[wgpu.TextureFormat]*wgpu.RenderPipeline
}

func newWGPUBlitter(b *wgpuBackendImpl) *wgpuBlitter {
	return &wgpuBlitter{
		b:         b,
		pipelines: make(map[wgpu.TextureFormat]*wgpu.RenderPipeline),
	}
}

func (bl *wgpuBlitter) init() {
	if bl.module != nil {
		return
	}
	device := bl.b.device

	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "blit shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: blitShader},
	})
	if err != nil {
		panic(fmt.Sprintf("backend: failed to create blit shader: %v", err))
	}
	layout, err := device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "blit bind group layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageFragment,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("backend: failed to create blit bind group layout: %v", err))
	}
	pipeLayout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "blit pipeline layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		panic(fmt.Sprintf("backend: failed to create blit pipeline layout: %v", err))
	}
	sampler, err := device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "blit sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		panic(fmt.Sprintf("backend: failed to create blit sampler: %v", err))
	}

	bl.module = module
	bl.layout = layout
	bl.pipeLayout = pipeLayout
	bl.sampler = sampler
}

func (bl *wgpuBlitter) pipeline(format wgpu.TextureFormat) *wgpu.RenderPipeline {
	if p, ok := bl.pipelines[format]; ok {
		return p
	}
	p, err := bl.b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("blit pipeline %v", format),
		Layout: bl.pipeLayout,
		Vertex: wgpu.VertexState{
			Module:     bl.module,
			EntryPoint: "vs_main",
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		Fragment: &wgpu.FragmentState{
			Module:     bl.module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    format,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("backend: failed to create blit pipeline for %v: %v", format, err))
	}
	bl.pipelines[format] = p
	return p
}

func (bl *wgpuBlitter) blit(enc *wgpu.CommandEncoder, dst *wgpuTexture, dstMip uint32, src *wgpuTexture, srcMip uint32) {
	if dst.desc.Format.IsDepthStencil() || src.desc.Format.IsDepthStencil() {
		panic("backend: blit of depth textures is not supported")
	}
	bl.init()

	format := toWGPUTextureFormat(dst.desc.Format)
	bg, err := bl.b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "blit bind group",
		Layout: bl.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: src.mipView(srcMip)},
			{Binding: 1, Sampler: bl.sampler},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("backend: failed to create blit bind group: %v", err))
	}
	defer bg.Release()

	pass := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "blit pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:    dst.mipView(dstMip),
				LoadOp:  wgpu.LoadOpClear,
				StoreOp: wgpu.StoreOpStore,
			},
		},
	})
	pass.SetPipeline(bl.pipeline(format))
	pass.SetBindGroup(0, bg, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()
	pass.Release()
}

func (bl *wgpuBlitter) release() {
	for _, p := range bl.pipelines {
		p.Release()
	}
	bl.pipelines = nil
	if bl.module == nil {
		return
	}
	bl.sampler.Release()
	bl.pipeLayout.Release()
	bl.layout.Release()
	bl.module.Release()
}
